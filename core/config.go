package core

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string
		Build        string
		AppName      string `validate:"required"`
		Debug        bool
		TestMode     bool
		WorkDir      string
		SecretKey    string `validate:"required"`
		RollbarToken string

		Server   ServerConfig
		Backend  BackendConfig
		Store    StoreConfig
		Database DatabaseConfig
		Chat     ChatConfig
	}

	ServerConfig struct {
		Address            string `validate:"required"`
		DebugAddress       string
		Host               string
		PublicURL          string `validate:"omitempty,url"`
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		DisableAuth        bool
	}

	// BackendConfig points the engine at the messaging backend.
	BackendConfig struct {
		BaseURL string        `validate:"required,url"`
		Token   string
		Timeout time.Duration `validate:"min=0"`
	}

	StoreConfig struct {
		Engine string `validate:"required,oneof=memory postgres pebble"`
		Path   string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ChatConfig struct {
		UserID   string
		Mode     string `validate:"omitempty,threadmode"`
		TaskID   string
		ScanID   string
		Greeting string
	}
)

func (db DatabaseConfig) Address() string {
	if db.Port == "" {
		return db.Host
	}
	return db.Host + ":" + db.Port
}

// NewConfig loads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Keys are read from `<ENV>_<KEY>` variables, eg. DEV_BACKEND_BASEURL.
func NewConfig() (*Config, error) {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Masomo Homework Chat")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":8001")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.publicURL", "http://localhost:8000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.disableAuth", false)
	v.SetDefault("backend.baseURL", "http://localhost:8000/v1")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("store.engine", "pebble")
	v.SetDefault("store.path", filepath.Join(os.TempDir(), "homeworkchat"))
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "homeworkchat")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("chat.userID", "")
	v.SetDefault("chat.mode", "homework")
	v.SetDefault("chat.taskID", "")
	v.SetDefault("chat.scanID", "")
	v.SetDefault("chat.greeting", "Hi! Send me a photo of your homework or ask me a question.")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
		v.SetDefault("store.engine", "memory")
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		AppName:      v.GetString("appName"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		WorkDir:      workDir,
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Address:            v.GetString("server.address"),
			DebugAddress:       v.GetString("server.debugAddress"),
			Host:               v.GetString("server.host"),
			PublicURL:          strings.TrimRight(v.GetString("server.publicURL"), "/"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
			DisableAuth:        v.GetBool("server.disableAuth"),
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(v.GetString("backend.baseURL"), "/"),
			Token:   v.GetString("backend.token"),
			Timeout: v.GetDuration("backend.timeout"),
		},
		Store: StoreConfig{
			Engine: CleanString(v.GetString("store.engine"), true /* lower */),
			Path:   v.GetString("store.path"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Chat: ChatConfig{
			UserID:   CleanString(v.GetString("chat.userID")),
			Mode:     CleanString(v.GetString("chat.mode"), true /* lower */),
			TaskID:   CleanString(v.GetString("chat.taskID")),
			ScanID:   CleanString(v.GetString("chat.scanID")),
			Greeting: v.GetString("chat.greeting"),
		},
	}, nil
}

// Validate checks the loaded configuration.
func (conf *Config) Validate(validate *validator.Validate) error {
	if err := validate.Struct(conf); err != nil {
		return err
	}
	if conf.Store.Engine == "pebble" && conf.Store.Path == "" {
		return NewValidationError(
			errors.New("store path is required"),
			FieldError{Field: "Store.Path", Error: "required when engine is pebble"},
		)
	}
	return nil
}
