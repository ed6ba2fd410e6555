// Package extension tracks named, independently loadable command modules.
//
// Extensions are compiled into the binary and listed in a Catalog. Which of
// them the bot loads is decided by discovery: a directory of JSON manifests,
// one per extension, or the whole catalog when no directory is configured.
//
//	extensions/
//	    status.json      → exts.status
//	    _disabled.json   (skipped: private prefix)
//
// A manifest may carry settings handed to the extension's factory:
//
//	{
//	    // JSON with comments is accepted
//	    "description": "Bot status commands",
//	    "settings": {"precision": 3}
//	}
//
// The Registry is the single source of truth for extension state. Every
// load, unload and reload is logged with the extension name and outcome,
// and recorded by the optional Auditor.
package extension
