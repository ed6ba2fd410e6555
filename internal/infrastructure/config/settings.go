package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Settings is the typed configuration snapshot for roycemorebot.
// Every value is resolved once at startup by NewSettings; consumers read
// fields instead of resolving paths at arbitrary call sites.
type Settings struct {
	Bot        BotConfig
	Guild      GuildConfig
	StaffRoles StaffRolesConfig
	ClassRoles ClassRolesConfig
	Channels   ChannelsConfig
	Categories CategoriesConfig
	Emoji      EmojiConfig

	// Groups are role sets derived from StaffRoles and ClassRoles.
	Groups Groups

	Logging    LoggingConfig
	Database   DatabaseConfig
	MQTT       MQTTConfig
	InfluxDB   InfluxDBConfig
	Ops        OpsConfig
	Extensions ExtensionsConfig

	// Debug is true when the DEBUG environment variable is present.
	Debug bool
}

// BotConfig contains bot identity settings.
type BotConfig struct {
	Prefix   string
	Token    string
	DataDir  string
	Activity string
}

// GuildConfig contains the home guild.
type GuildConfig struct {
	ID int64
}

// StaffRolesConfig contains staff role IDs.
type StaffRolesConfig struct {
	Admin   int64
	Mod     int64
	BotTeam int64
}

// ClassRolesConfig contains class year role IDs.
type ClassRolesConfig struct {
	Freshmen   int64
	Sophomores int64
	Juniors    int64
	Seniors    int64
	Alumni     int64
}

// ChannelsConfig contains channel IDs the bot writes to.
type ChannelsConfig struct {
	Commands    int64
	BotLog      int64
	ModCommands int64
}

// CategoriesConfig contains channel category IDs.
type CategoriesConfig struct {
	Clubs int64
}

// EmojiConfig contains the emoji used in replies.
type EmojiConfig struct {
	OK         string
	Warning    string
	No         string
	GreenCheck string
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path        string
	WALMode     bool
	BusyTimeout int
}

// MQTTConfig contains the gateway broker settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig
	Auth        MQTTAuthConfig
	QoS         int
	Reconnect   MQTTReconnectConfig
	TopicPrefix string
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string
	Port     int
	TLS      bool
	ClientID string
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string
	Password string
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int
	MaxDelay     int
}

// InfluxDBConfig contains command metrics settings.
type InfluxDBConfig struct {
	Enabled       bool
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     int
	FlushInterval int
}

// OpsConfig contains the operations HTTP endpoint settings.
type OpsConfig struct {
	Enabled bool
	Listen  string
}

// ExtensionsConfig contains extension discovery settings.
// An empty Dir means every compiled-in extension is loaded.
type ExtensionsConfig struct {
	Dir string
}

// NewSettings resolves every path roycemorebot needs from doc.
//
// Required keys fail fast: the first missing key or environment variable is
// returned and nothing else is resolved. Ambient sections (logging, database,
// mqtt, influxdb, ops, extensions) fall back to defaults key by key.
//
// Returns:
//   - *Settings: Resolved and validated settings
//   - error: *ResolveError for resolution failures, or a validation error
func NewSettings(doc *Document) (*Settings, error) {
	r := &resolver{doc: doc}
	s := &Settings{}

	s.Bot = BotConfig{
		Prefix:   r.str(Key("bot", "prefix")),
		Token:    r.str(Key("bot", "bot_token")),
		DataDir:  r.optStr(Key("bot", "data_dir"), "."),
		Activity: r.optStr(Key("bot", "activity"), ""),
	}
	s.Guild = GuildConfig{
		ID: r.int64(Key("guild", "guild_id")),
	}
	s.StaffRoles = StaffRolesConfig{
		Admin:   r.int64(SubKey("guild", "staff_roles", "admin_role")),
		Mod:     r.int64(SubKey("guild", "staff_roles", "mod_role")),
		BotTeam: r.int64(SubKey("guild", "staff_roles", "bot_team_role")),
	}
	s.ClassRoles = ClassRolesConfig{
		Freshmen:   r.int64(SubKey("guild", "class_roles", "freshmen")),
		Sophomores: r.int64(SubKey("guild", "class_roles", "sophomores")),
		Juniors:    r.int64(SubKey("guild", "class_roles", "juniors")),
		Seniors:    r.int64(SubKey("guild", "class_roles", "seniors")),
		Alumni:     r.int64(SubKey("guild", "class_roles", "alumni")),
	}
	s.Channels = ChannelsConfig{
		Commands:    r.int64(SubKey("guild", "channels", "roycemorebot_commands")),
		BotLog:      r.int64(SubKey("guild", "channels", "bot_log")),
		ModCommands: r.int64(SubKey("guild", "channels", "mod_bot_commands")),
	}
	s.Categories = CategoriesConfig{
		Clubs: r.int64(SubKey("guild", "categories", "clubs")),
	}
	s.Emoji = EmojiConfig{
		OK:         r.str(SubKey("style", "emoji", "ok")),
		Warning:    r.str(SubKey("style", "emoji", "warning")),
		No:         r.str(SubKey("style", "emoji", "no")),
		GreenCheck: r.str(SubKey("style", "emoji", "green_check")),
	}

	s.Logging = LoggingConfig{
		Level:  r.optStr(Key("logging", "level"), "info"),
		Format: r.optStr(Key("logging", "format"), "json"),
		Output: r.optStr(Key("logging", "output"), "stdout"),
	}
	s.Database = DatabaseConfig{
		Path:        r.optStr(Key("database", "path"), filepath.Join(s.Bot.DataDir, "db.sqlite3")),
		WALMode:     r.optBool(Key("database", "wal_mode"), true),
		BusyTimeout: r.optInt(Key("database", "busy_timeout"), 5),
	}
	s.MQTT = MQTTConfig{
		Broker: MQTTBrokerConfig{
			Host:     r.optStr(SubKey("mqtt", "broker", "host"), "localhost"),
			Port:     r.optInt(SubKey("mqtt", "broker", "port"), 1883),
			TLS:      r.optBool(SubKey("mqtt", "broker", "tls"), false),
			ClientID: r.optStr(SubKey("mqtt", "broker", "client_id"), "roycemorebot"),
		},
		Auth: MQTTAuthConfig{
			Username: r.optStr(SubKey("mqtt", "auth", "username"), ""),
			Password: r.optStr(SubKey("mqtt", "auth", "password"), ""),
		},
		QoS: r.optInt(Key("mqtt", "qos"), 1),
		Reconnect: MQTTReconnectConfig{
			InitialDelay: r.optInt(SubKey("mqtt", "reconnect", "initial_delay"), 1),
			MaxDelay:     r.optInt(SubKey("mqtt", "reconnect", "max_delay"), 60),
		},
		TopicPrefix: r.optStr(Key("mqtt", "topic_prefix"), "roycemorebot"),
	}
	s.InfluxDB = InfluxDBConfig{
		Enabled:       r.optBool(Key("influxdb", "enabled"), false),
		URL:           r.optStr(Key("influxdb", "url"), "http://localhost:8086"),
		Token:         r.optStr(Key("influxdb", "token"), ""),
		Org:           r.optStr(Key("influxdb", "org"), "roycemore"),
		Bucket:        r.optStr(Key("influxdb", "bucket"), "roycemorebot"),
		BatchSize:     r.optInt(Key("influxdb", "batch_size"), 100),
		FlushInterval: r.optInt(Key("influxdb", "flush_interval"), 10),
	}
	s.Ops = OpsConfig{
		Enabled: r.optBool(Key("ops", "enabled"), false),
		Listen:  r.optStr(Key("ops", "listen"), "127.0.0.1:8089"),
	}
	s.Extensions = ExtensionsConfig{
		Dir: r.optStr(Key("extensions", "dir"), ""),
	}

	if r.err != nil {
		return nil, r.err
	}

	s.Groups = newGroups(s.StaffRoles, s.ClassRoles)
	s.Debug = DebugMode()

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks resolved settings for values that would fail later.
func (s *Settings) Validate() error {
	var errs []string

	if s.Bot.Prefix == "" {
		errs = append(errs, "bot.prefix must not be empty")
	}
	if s.Bot.Token == "" {
		errs = append(errs, "bot.bot_token must not be empty (set \"!ENV\" and BOT_TOKEN)")
	}
	if s.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if s.MQTT.QoS < 0 || s.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if s.MQTT.Broker.Port < 1 || s.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if s.InfluxDB.Enabled && s.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DebugMode reports whether the DEBUG environment variable is present.
// An empty value still counts.
func DebugMode() bool {
	_, ok := os.LookupEnv("DEBUG")
	return ok
}

// Groups holds role sets derived from individual role settings.
type Groups struct {
	// BotAdmins may reload extensions, pull updates and restart the bot.
	BotAdmins RoleSet

	// ModRoles are the moderation roles.
	ModRoles RoleSet

	// ClassRoles are the class year roles.
	ClassRoles RoleSet
}

func newGroups(staff StaffRolesConfig, class ClassRolesConfig) Groups {
	return Groups{
		BotAdmins:  NewRoleSet(staff.BotTeam, staff.Admin),
		ModRoles:   NewRoleSet(staff.Mod, staff.Admin),
		ClassRoles: NewRoleSet(class.Freshmen, class.Sophomores, class.Juniors, class.Seniors, class.Alumni),
	}
}

// RoleSet is a read-only, ordered set of role IDs.
type RoleSet struct {
	ids []int64
}

// NewRoleSet builds a RoleSet, dropping duplicates and keeping first-seen order.
func NewRoleSet(ids ...int64) RoleSet {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return RoleSet{ids: out}
}

// IDs returns a copy of the role IDs.
func (s RoleSet) IDs() []int64 {
	return slices.Clone(s.ids)
}

// Len returns the number of roles in the set.
func (s RoleSet) Len() int {
	return len(s.ids)
}

// Contains reports whether id is in the set.
func (s RoleSet) Contains(id int64) bool {
	return slices.Contains(s.ids, id)
}

// ContainsAny reports whether any of ids is in the set.
func (s RoleSet) ContainsAny(ids []int64) bool {
	return slices.ContainsFunc(ids, s.Contains)
}

// resolver resolves paths, keeping only the first error.
type resolver struct {
	doc *Document
	err error
}

func (r *resolver) value(p Path) (Value, bool) {
	if r.err != nil {
		return Value{}, false
	}
	v, err := r.doc.Resolve(p)
	if err != nil {
		r.err = err
		return Value{}, false
	}
	return v, true
}

func (r *resolver) optional(p Path) (Value, bool) {
	if r.err != nil {
		return Value{}, false
	}
	v, found, err := r.doc.Optional(p)
	if err != nil {
		r.err = err
		return Value{}, false
	}
	return v, found
}

func (r *resolver) str(p Path) string {
	v, ok := r.value(p)
	if !ok {
		return ""
	}
	s, err := v.String()
	if err != nil {
		r.err = err
	}
	return s
}

func (r *resolver) int64(p Path) int64 {
	v, ok := r.value(p)
	if !ok {
		return 0
	}
	n, err := v.Int64()
	if err != nil {
		r.err = err
	}
	return n
}

func (r *resolver) optStr(p Path, def string) string {
	v, ok := r.optional(p)
	if !ok {
		return def
	}
	s, err := v.String()
	if err != nil {
		r.err = err
		return def
	}
	return s
}

func (r *resolver) optInt(p Path, def int) int {
	v, ok := r.optional(p)
	if !ok {
		return def
	}
	n, err := v.Int()
	if err != nil {
		r.err = err
		return def
	}
	return n
}

func (r *resolver) optBool(p Path, def bool) bool {
	v, ok := r.optional(p)
	if !ok {
		return def
	}
	b, err := v.Bool()
	if err != nil {
		r.err = err
		return def
	}
	return b
}
