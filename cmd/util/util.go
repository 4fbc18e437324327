package util

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/fsKV/lib/codec"
	"github.com/ValentinKolb/fsKV/lib/db"
	"github.com/ValentinKolb/fsKV/lib/logging"
	"github.com/ValentinKolb/fsKV/lib/store"
	"github.com/ValentinKolb/fsKV/lib/store/fstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupStoreFlags adds the flags every store command needs
func SetupStoreFlags(cmd *cobra.Command) {
	key := "root"
	cmd.PersistentFlags().String(key, "fskv-data", WrapString("Directory of the store"))

	key = "codec"
	cmd.PersistentFlags().String(key, "json", WrapString("Codec for values (json, gob, string). json stores the value text as JSON (plain text becomes a JSON string) and prints strings unquoted, so typed programs can read it"))

	key = "compress"
	cmd.PersistentFlags().Bool(key, false, WrapString("Compress written buckets with zstd (readers detect compression on their own)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("Log level (debug, info, warn, error)"))

	key = "config"
	cmd.PersistentFlags().String(key, "", WrapString("Optional config file (yaml, json or toml) with the same keys as the flags"))
}

// InitConfig loads .env files and configures viper to read FSKV_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("fskv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper, reads the config file if
// one is given and initializes the loggers
func BindCommandFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if path := viper.GetString("config"); path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return logging.InitLoggers(viper.GetString("log-level"))
}

// Config is the configuration of the store commands
type Config struct {
	Root     string
	Codec    string
	Compress bool
	LogLevel string
}

// GetConfig reads the configuration from viper
func GetConfig() *Config {
	return &Config{
		Root:     viper.GetString("root"),
		Codec:    viper.GetString("codec"),
		Compress: viper.GetBool("compress"),
		LogLevel: viper.GetString("log-level"),
	}
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Store")
	addField("Root", c.Root)
	addField("Codec", c.Codec)
	addField("Compression", string(c.compression()))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

func (c *Config) compression() db.Compression {
	if c.Compress {
		return db.CompressionZstd
	}
	return db.CompressionAuto
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// StoreOptions builds the store options for the configuration.
// Keys are always JSON encoded, matching the library default.
func (c *Config) StoreOptions(overwrite bool) (*store.Options[string, string], error) {
	values, err := valueCodec(c.Codec)
	if err != nil {
		return nil, err
	}
	return &store.Options[string, string]{
		KeyCodec:    codec.NewJSONCodec[string](),
		ValueCodec:  values,
		Compression: c.compression(),
		Overwrite:   overwrite,
	}, nil
}

// OpenStore opens the existing store of the configuration
func (c *Config) OpenStore() (store.IStore[string, string], error) {
	opts, err := c.StoreOptions(false)
	if err != nil {
		return nil, err
	}
	return fstore.Open[string, string](c.Root, opts)
}

// valueCodec returns the codec the CLI uses for values given as text
func valueCodec(name string) (codec.ICodec[string], error) {
	switch name {
	case "json":
		return jsonTextCodec{}, nil
	case "string":
		return codec.NewStringCodec(), nil
	default:
		return codec.ForName[string](name)
	}
}

// jsonTextCodec stores the value text as is after checking it is valid JSON.
// Text that is not JSON is stored as a JSON string. Decoding returns JSON
// strings unquoted and every other JSON value as stored, so text set on the
// command line reads back unchanged.
type jsonTextCodec struct{}

func (jsonTextCodec) Encode(v string) ([]byte, error) {
	if json.Valid([]byte(v)) {
		return []byte(v), nil
	}
	return json.Marshal(v)
}

func (jsonTextCodec) Decode(b []byte) (string, error) {
	if !json.Valid(b) {
		return "", fmt.Errorf("invalid json value")
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s, nil
	}
	return string(b), nil
}

func (jsonTextCodec) Name() string {
	return "json"
}
