// Package config loads and validates the TOML-shaped configuration
// described in the tournament engine's external interfaces: sections
// animation, bot, db, dev (optional), poll, scheduler, server, tournament,
// webhook.
package config

import (
	"fmt"
	"math"

	"github.com/spf13/viper"
)

// Animation holds media-pipeline limits and directories.
type Animation struct {
	AllowedMimeTypes           []string `mapstructure:"allowed_mime_types"`
	MaxDurationSecs            uint16   `mapstructure:"max_duration_secs"`
	MaxSizeBytes               uint64   `mapstructure:"max_size_bytes"`
	SaveDir                    string   `mapstructure:"save_dir"`
	TempFilenameBits           uint16   `mapstructure:"temp_filename_bits"`
	TempSaveDir                string   `mapstructure:"temp_save_dir"`
	ThumbnailFingerprintFile   string   `mapstructure:"thumbnail_fingerprint_file"`
	ThumbnailFingerprintThresh string   `mapstructure:"thumbnail_fingerprint_threshold"`
	ThumbnailSaveDir           string   `mapstructure:"thumbnail_save_dir"`
	VspipeWorkingDir           string   `mapstructure:"vspipe_working_dir"`

	// TempFilenameLength is derived from TempFilenameBits via AlphanumTokenLength.
	TempFilenameLength uint16 `mapstructure:"-"`

	allowedMimeTypeSet map[string]struct{}
}

// IsAllowedMimeType reports whether mt is in the allow-list.
func (a *Animation) IsAllowedMimeType(mt string) bool {
	_, ok := a.allowedMimeTypeSet[mt]
	return ok
}

// Bot holds chat-platform bot credentials.
type Bot struct {
	Token string `mapstructure:"token"`
}

// DB holds database connection parameters.
type DB struct {
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	ApplicationName string `mapstructure:"application_name"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
}

// Dev holds optional development/testing overrides.
type Dev struct {
	Debug   bool `mapstructure:"debug"`
	InitDB  *DB  `mapstructure:"init_db"`
	Testing bool `mapstructure:"testing"`
}

// Poll holds the two fixed poll option labels.
type Poll struct {
	OptionAText string `mapstructure:"option_a_text"`
	OptionBText string `mapstructure:"option_b_text"`
}

// Scheduler holds the periodic expiry-check tick parameters.
type Scheduler struct {
	JobIntervalSecs   uint16 `mapstructure:"job_interval_secs"`
	JobTimeoutSecs    uint16 `mapstructure:"job_timeout_secs"`
	PollIntervalMilli uint16 `mapstructure:"poll_interval_millis"`
}

// Server holds the duplicate-suggestions HTTP server bind parameters.
type Server struct {
	SocketPath        string `mapstructure:"socket_path"`
	SocketPermissions uint32 `mapstructure:"socket_permissions"`
	ListenAddr        string `mapstructure:"listen_addr"`
}

// Tournament holds bracket-shape defaults.
type Tournament struct {
	IDBits         uint16   `mapstructure:"id_bits"`
	MaxRounds      uint8    `mapstructure:"max_rounds"`
	RoundLengths   []uint16 `mapstructure:"round_lengths_secs"`

	// IDLength is derived from IDBits via AlphanumTokenLength.
	IDLength uint16 `mapstructure:"-"`
}

// Webhook holds the inbound webhook transport parameters.
type Webhook struct {
	Secret            string `mapstructure:"secret"`
	SocketPath        string `mapstructure:"socket_path"`
	SocketPermissions uint32 `mapstructure:"socket_permissions"`
	URL               string `mapstructure:"url"`
	ListenAddr        string `mapstructure:"listen_addr"`
}

// Config is the fully decoded and validated configuration tree.
type Config struct {
	Animation  Animation  `mapstructure:"animation"`
	Bot        Bot        `mapstructure:"bot"`
	DB         DB         `mapstructure:"db"`
	Dev        *Dev       `mapstructure:"dev"`
	Poll       Poll       `mapstructure:"poll"`
	Scheduler  Scheduler  `mapstructure:"scheduler"`
	Server     Server     `mapstructure:"server"`
	Tournament Tournament `mapstructure:"tournament"`
	Webhook    Webhook    `mapstructure:"webhook"`
}

// ValidationError reports a single failed configuration check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// log62 is log2(62), the alphanumeric alphabet size, used to convert an
// entropy-bits setting into a token character length.
var log62 = math.Log2(62)

// AlphanumTokenLength converts bits of entropy into the number of
// alphanumeric characters needed to carry at least that much entropy.
func AlphanumTokenLength(bits uint16) uint16 {
	return uint16(math.Ceil(float64(bits) / log62))
}

// Load reads the TOML file at path, decodes it, derives computed fields,
// and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.Tournament.IDLength = AlphanumTokenLength(cfg.Tournament.IDBits)
	cfg.Animation.TempFilenameLength = AlphanumTokenLength(cfg.Animation.TempFilenameBits)

	cfg.Animation.allowedMimeTypeSet = make(map[string]struct{}, len(cfg.Animation.AllowedMimeTypes))
	for _, mt := range cfg.Animation.AllowedMimeTypes {
		cfg.Animation.allowedMimeTypeSet[mt] = struct{}{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the cross-field and non-empty constraints the engine
// requires to run safely.
func (c *Config) Validate() error {
	if len(c.Animation.AllowedMimeTypes) == 0 {
		return &ValidationError{Field: "animation.allowed_mime_types", Message: "must not be empty"}
	}
	if c.Bot.Token == "" {
		return &ValidationError{Field: "bot.token", Message: "must not be empty"}
	}
	if c.Poll.OptionAText == c.Poll.OptionBText {
		return &ValidationError{Field: "poll.option_a_text/option_b_text", Message: "must be distinct"}
	}
	if len(c.Tournament.RoundLengths) != int(c.Tournament.MaxRounds) {
		return &ValidationError{Field: "tournament.round_lengths_secs", Message: "length must equal tournament.max_rounds"}
	}
	if c.Webhook.Secret == "" {
		return &ValidationError{Field: "webhook.secret", Message: "must not be empty"}
	}
	if c.Webhook.URL == "" {
		return &ValidationError{Field: "webhook.url", Message: "must not be empty"}
	}
	return nil
}
