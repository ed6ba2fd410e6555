package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

const fullDocument = `{
	// comments are allowed
	"bot": {
		"prefix": "!",
		"bot_token": "!ENV",
	},
	"guild": {
		"guild_id": 793569542437765120,
		"staff_roles": {
			"admin_role": 793569542437765121,
			"mod_role": 793569542437765122,
			"bot_team_role": 793569542437765123
		},
		"class_roles": {
			"freshmen": 11,
			"sophomores": 12,
			"juniors": 13,
			"seniors": 14,
			"alumni": 15
		},
		"channels": {
			"roycemorebot_commands": 21,
			"bot_log": 22,
			"mod_bot_commands": 23
		},
		"categories": {
			"clubs": 31
		}
	},
	"style": {
		"emoji": {
			"ok": ":ok_hand:",
			"warning": ":warning:",
			"no": ":no_entry:",
			"green_check": ":white_check_mark:"
		}
	}
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoad_DefaultOnly(t *testing.T) {
	dir := t.TempDir()
	defaultPath := writeFile(t, dir, "config-default.json", `{"bot":{"prefix":"?"}}`)

	doc, err := Load(filepath.Join(dir, "config.json"), defaultPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Source() != defaultPath {
		t.Errorf("Source() = %q, want %q", doc.Source(), defaultPath)
	}

	v, err := doc.Resolve(Key("bot", "prefix"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got, _ := v.String(); got != "?" {
		t.Errorf("bot.prefix = %q, want %q", got, "?")
	}
}

func TestLoad_OverrideReplacesDefault(t *testing.T) {
	dir := t.TempDir()
	defaultPath := writeFile(t, dir, "config-default.json", `{"bot":{"prefix":"?","only_default":"x"}}`)
	overridePath := writeFile(t, dir, "config.json", `{"bot":{"prefix":"!"}}`)

	doc, err := Load(overridePath, defaultPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Source() != overridePath {
		t.Errorf("Source() = %q, want %q", doc.Source(), overridePath)
	}

	v, err := doc.Resolve(Key("bot", "prefix"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got, _ := v.String(); got != "!" {
		t.Errorf("bot.prefix = %q, want %q", got, "!")
	}

	// Keys only present in the default must not leak through.
	_, err = doc.Resolve(Key("bot", "only_default"))
	if !errors.Is(err, ErrMissingConfigKey) {
		t.Errorf("Resolve(bot.only_default) error = %v, want ErrMissingConfigKey", err)
	}
}

func TestLoad_NeitherFileExists(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(filepath.Join(dir, "config.json"), filepath.Join(dir, "config-default.json"))
	if !errors.Is(err, ErrConfigLoad) {
		t.Errorf("Load() error = %v, want ErrConfigLoad", err)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"bot": {"prefix": `)

	_, err := Load(path, "")
	if !errors.Is(err, ErrConfigLoad) {
		t.Errorf("Load() error = %v, want ErrConfigLoad", err)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
bot:
  prefix: "!"
guild:
  staff_roles:
    admin_role: 793569542437765121
`)

	doc, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	v, err := doc.Resolve(SubKey("guild", "staff_roles", "admin_role"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	n, err := v.Int64()
	if err != nil {
		t.Fatalf("Int64() error = %v", err)
	}
	if n != 793569542437765121 {
		t.Errorf("admin_role = %d, want 793569542437765121", n)
	}
}

func TestParse_Structure(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "sections and subsections", input: `{"a":{"b":1,"c":{"d":"x"}}}`},
		{name: "trailing commas", input: `{"a":{"b":1,},}`},
		{name: "section is scalar", input: `{"a":1}`, wantErr: true},
		{name: "three levels", input: `{"a":{"b":{"c":{"d":1}}}}`, wantErr: true},
		{name: "array value", input: `{"a":{"b":[1,2]}}`, wantErr: true},
		{name: "top level array", input: `[1]`, wantErr: true},
		{name: "trailing data", input: `{"a":{}} {"b":{}}`, wantErr: true},
		{name: "null document", input: `null`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input), ".json")
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolve_StoredValues(t *testing.T) {
	doc, err := Parse([]byte(fullDocument), ".json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		path Path
		want string
	}{
		{path: Key("bot", "prefix"), want: "!"},
		{path: Key("guild", "guild_id"), want: "793569542437765120"},
		{path: SubKey("guild", "staff_roles", "mod_role"), want: "793569542437765122"},
		{path: SubKey("guild", "channels", "bot_log"), want: "22"},
		{path: SubKey("style", "emoji", "green_check"), want: ":white_check_mark:"},
		{path: SubKey("style", "emoji", "GREEN_CHECK"), want: ":white_check_mark:"},
	}

	for _, tt := range tests {
		t.Run(tt.path.String(), func(t *testing.T) {
			v, err := doc.Resolve(tt.path)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			got, err := v.String()
			if err != nil {
				t.Fatalf("String() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%s) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolve_MissingKeyNamesPath(t *testing.T) {
	doc, err := Parse([]byte(fullDocument), ".json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		path       Path
		wantDotted string
	}{
		{path: Key("nope", "key"), wantDotted: "nope.key"},
		{path: Key("bot", "missing"), wantDotted: "bot.missing"},
		{path: SubKey("guild", "nope", "admin_role"), wantDotted: "guild.nope.admin_role"},
		{path: SubKey("guild", "staff_roles", "owner_role"), wantDotted: "guild.staff_roles.owner_role"},
		{path: SubKey("bot", "prefix", "x"), wantDotted: "bot.prefix.x"},
	}

	for _, tt := range tests {
		t.Run(tt.wantDotted, func(t *testing.T) {
			_, err := doc.Resolve(tt.path)
			if !errors.Is(err, ErrMissingConfigKey) {
				t.Fatalf("Resolve() error = %v, want ErrMissingConfigKey", err)
			}

			var resolveErr *ResolveError
			if !errors.As(err, &resolveErr) {
				t.Fatalf("error %T is not *ResolveError", err)
			}
			if resolveErr.Path.String() != tt.wantDotted {
				t.Errorf("Path = %q, want %q", resolveErr.Path.String(), tt.wantDotted)
			}
		})
	}
}

func TestResolve_MixedCaseDocumentKeys(t *testing.T) {
	doc, err := Parse([]byte(`{"bot":{"Prefix":"!"},"style":{"emoji":{"Green_Check":":ok:"}}}`), ".json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		path Path
		want string
	}{
		{path: Key("bot", "Prefix"), want: "!"},
		{path: Key("bot", "prefix"), want: "!"},
		{path: SubKey("style", "emoji", "green_check"), want: ":ok:"},
	}
	for _, tt := range tests {
		v, err := doc.Resolve(tt.path)
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", tt.path, err)
		}
		if got, _ := v.String(); got != tt.want {
			t.Errorf("Resolve(%s) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestParse_KeysDifferingOnlyInCase(t *testing.T) {
	inputs := []string{
		`{"bot":{"prefix":"!","PREFIX":"?"}}`,
		`{"style":{"emoji":{"ok":"a","OK":"b"}}}`,
	}
	for _, input := range inputs {
		if _, err := Parse([]byte(input), ".json"); err == nil {
			t.Errorf("Parse(%s) should fail on keys that collide once lower-cased", input)
		}
	}
}

func TestResolve_EnvMarker(t *testing.T) {
	doc, err := Parse([]byte(`{"bot":{"prefix":"!","bot_token":"!ENV"}}`), ".json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	t.Setenv("BOT_TOKEN", "abc123")

	v, err := doc.Resolve(Key("bot", "bot_token"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	got, _ := v.String()
	if got != "abc123" {
		t.Errorf("bot.bot_token = %q, want %q", got, "abc123")
	}
}

func TestResolve_EnvMarkerMissingVariable(t *testing.T) {
	doc, err := Parse([]byte(`{"bot":{"bot_token":"!ENV"}}`), ".json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	// t.Setenv registers restoration; Unsetenv then clears it for this test.
	t.Setenv("BOT_TOKEN", "")
	os.Unsetenv("BOT_TOKEN") //nolint:errcheck // restored by t.Setenv cleanup

	_, err = doc.Resolve(Key("bot", "bot_token"))
	if !errors.Is(err, ErrMissingEnvironmentVariable) {
		t.Fatalf("Resolve() error = %v, want ErrMissingEnvironmentVariable", err)
	}

	var resolveErr *ResolveError
	if !errors.As(err, &resolveErr) {
		t.Fatalf("error %T is not *ResolveError", err)
	}
	if resolveErr.Env != "BOT_TOKEN" {
		t.Errorf("Env = %q, want %q", resolveErr.Env, "BOT_TOKEN")
	}
}

func TestOptional(t *testing.T) {
	doc, err := Parse([]byte(`{"logging":{"level":"debug","token":"!ENV"}}`), ".json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	v, found, err := doc.Optional(Key("logging", "level"))
	if err != nil || !found {
		t.Fatalf("Optional(logging.level) = found %v, err %v", found, err)
	}
	if got, _ := v.String(); got != "debug" {
		t.Errorf("logging.level = %q, want %q", got, "debug")
	}

	_, found, err = doc.Optional(Key("logging", "format"))
	if err != nil || found {
		t.Errorf("Optional(logging.format) = found %v, err %v, want not found", found, err)
	}

	t.Setenv("TOKEN", "")
	os.Unsetenv("TOKEN") //nolint:errcheck // restored by t.Setenv cleanup
	_, _, err = doc.Optional(Key("logging", "token"))
	if !errors.Is(err, ErrMissingEnvironmentVariable) {
		t.Errorf("Optional(logging.token) error = %v, want ErrMissingEnvironmentVariable", err)
	}
}

func TestValue_Conversions(t *testing.T) {
	doc, err := Parse([]byte(`{"s":{"n":42,"f":1.5,"b":true,"str":"17","word":"abc","flag":"false"}}`), ".json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	resolve := func(key string) Value {
		t.Helper()
		v, err := doc.Resolve(Key("s", key))
		if err != nil {
			t.Fatalf("Resolve(%s) error = %v", key, err)
		}
		return v
	}

	if n, err := resolve("n").Int(); err != nil || n != 42 {
		t.Errorf("n.Int() = %d, %v, want 42", n, err)
	}
	if n, err := resolve("str").Int64(); err != nil || n != 17 {
		t.Errorf("str.Int64() = %d, %v, want 17", n, err)
	}
	if b, err := resolve("b").Bool(); err != nil || !b {
		t.Errorf("b.Bool() = %v, %v, want true", b, err)
	}
	if b, err := resolve("flag").Bool(); err != nil || b {
		t.Errorf("flag.Bool() = %v, %v, want false", b, err)
	}
	if _, err := resolve("f").Int64(); !errors.Is(err, ErrWrongType) {
		t.Errorf("f.Int64() error = %v, want ErrWrongType", err)
	}
	if _, err := resolve("word").Int64(); !errors.Is(err, ErrWrongType) {
		t.Errorf("word.Int64() error = %v, want ErrWrongType", err)
	}
	if _, err := resolve("n").Bool(); !errors.Is(err, ErrWrongType) {
		t.Errorf("n.Bool() error = %v, want ErrWrongType", err)
	}
}

func TestValue_Int64Bounds(t *testing.T) {
	doc, err := Parse([]byte("s:\n  max: 9.223372036854775807e18\n  min: -9.223372036854775808e18\n  huge: 18446744073709551615\n"), ".yaml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		key     string
		want    int64
		wantErr bool
	}{
		// 9.223372036854775807e18 rounds to 2^63 as a float64.
		{key: "max", wantErr: true},
		{key: "min", want: math.MinInt64},
		{key: "huge", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v, err := doc.Resolve(Key("s", tt.key))
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			got, err := v.Int64()
			if tt.wantErr {
				if !errors.Is(err, ErrWrongType) {
					t.Errorf("Int64() = %d, %v, want ErrWrongType", got, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Int64() = %d, %v, want %d", got, err, tt.want)
			}
		})
	}
}

func TestDocument_Sections(t *testing.T) {
	doc, err := Parse([]byte(fullDocument), ".json")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	got := doc.Sections()
	want := []string{"bot", "guild", "style"}
	if len(got) != len(want) {
		t.Fatalf("Sections() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sections()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
