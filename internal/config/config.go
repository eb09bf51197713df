package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"

	AuthLocal    = "local"
	AuthFirebase = "firebase"

	HostImgBB      = "imgbb"
	HostCloudinary = "cloudinary"
	HostGCS        = "gcs"
	HostLocal      = "local"

	devJWTSecret = "your-secret-key-change-in-production"
)

type Config struct {
	Env string `mapstructure:"env"`

	Server struct {
		Address        string   `mapstructure:"address"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`

	Auth struct {
		Provider      string        `mapstructure:"provider"`
		JWTSecret     string        `mapstructure:"jwt_secret"`
		JWTExpiration time.Duration `mapstructure:"jwt_expiration"`
	} `mapstructure:"auth"`

	DocStore struct {
		Backend string `mapstructure:"backend"`
		DataDir string `mapstructure:"data_dir"`
	} `mapstructure:"docstore"`

	Mongo struct {
		URI string `mapstructure:"uri"`
		DB  string `mapstructure:"db"`
	} `mapstructure:"mongo"`

	Firebase struct {
		ProjectID       string `mapstructure:"project_id"`
		CredentialsJSON string `mapstructure:"credentials_json"`
		APIKey          string `mapstructure:"api_key"`
		StorageBucket   string `mapstructure:"storage_bucket"`
	} `mapstructure:"firebase"`

	Images struct {
		Host            string `mapstructure:"host"`
		UploadDir       string `mapstructure:"upload_dir"`
		MaxUploadSizeMB int64  `mapstructure:"max_upload_size_mb"`
	} `mapstructure:"images"`

	ImgBB struct {
		APIKey   string `mapstructure:"api_key"`
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"imgbb"`

	Cloudinary struct {
		CloudName string `mapstructure:"cloud_name"`
		APIKey    string `mapstructure:"api_key"`
		APISecret string `mapstructure:"api_secret"`
		Folder    string `mapstructure:"folder"`
	} `mapstructure:"cloudinary"`

	Redis struct {
		URI string `mapstructure:"uri"`
	} `mapstructure:"redis"`

	Kafka struct {
		Brokers     []string `mapstructure:"brokers"`
		UploadTopic string   `mapstructure:"upload_topic"`
		GroupID     string   `mapstructure:"group_id"`
	} `mapstructure:"kafka"`
}

var envBindings = map[string]string{
	"env":                       "ENV",
	"server.address":            "SERVER_ADDRESS",
	"server.allowed_origins":    "ALLOWED_ORIGINS",
	"auth.provider":             "AUTH_PROVIDER",
	"auth.jwt_secret":           "JWT_SECRET",
	"auth.jwt_expiration":       "JWT_EXPIRATION",
	"docstore.backend":          "DOCSTORE",
	"docstore.data_dir":         "DATA_DIR",
	"mongo.uri":                 "MONGO_URI",
	"mongo.db":                  "MONGO_DB",
	"firebase.project_id":       "FIREBASE_PROJECT_ID",
	"firebase.credentials_json": "FIREBASE_CREDENTIALS_JSON",
	"firebase.api_key":          "FIREBASE_API_KEY",
	"firebase.storage_bucket":   "FIREBASE_STORAGE_BUCKET",
	"images.host":               "IMAGE_HOST",
	"images.upload_dir":         "UPLOAD_DIR",
	"images.max_upload_size_mb": "MAX_UPLOAD_SIZE_MB",
	"imgbb.api_key":             "IMGBB_API_KEY",
	"imgbb.endpoint":            "IMGBB_ENDPOINT",
	"cloudinary.cloud_name":     "CLOUDINARY_CLOUD_NAME",
	"cloudinary.api_key":        "CLOUDINARY_API_KEY",
	"cloudinary.api_secret":     "CLOUDINARY_API_SECRET",
	"cloudinary.folder":         "CLOUDINARY_FOLDER",
	"redis.uri":                 "REDIS_URI",
	"kafka.brokers":             "KAFKA_BROKERS",
	"kafka.upload_topic":        "UPLOAD_EVENTS_TOPIC",
	"kafka.group_id":            "KAFKA_GROUP_ID",
}

// Load reads .env (if present), an optional config.yaml and the environment.
func Load() (*Config, error) {
	v, err := readFiles()
	if err != nil {
		return nil, err
	}
	return load(v)
}

// LoadWorker is Load for the moderation worker, which never hosts images and
// so defaults IMAGE_HOST to local.
func LoadWorker() (*Config, error) {
	v, err := readFiles()
	if err != nil {
		return nil, err
	}
	v.SetDefault("images.host", HostLocal)
	return load(v)
}

func readFiles() (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("note: .env file not found, using environment only")
	}

	v := viper.New()
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
	}
	return v, nil
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// Only the listed variables are read. DOCSTORE would otherwise shadow the
	// whole docstore section.
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	setDefault := func(key string, value any) {
		if !v.IsSet(key) {
			v.SetDefault(key, value)
		}
	}
	v.SetDefault("env", "development")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("auth.provider", AuthLocal)
	v.SetDefault("auth.jwt_secret", devJWTSecret)
	v.SetDefault("auth.jwt_expiration", 24*time.Hour)
	v.SetDefault("docstore.backend", BackendMemory)
	v.SetDefault("docstore.data_dir", "")
	v.SetDefault("mongo.db", "uniapp")
	setDefault("images.host", HostImgBB)
	v.SetDefault("images.upload_dir", "./uploads")
	v.SetDefault("images.max_upload_size_mb", 10)
	v.SetDefault("imgbb.endpoint", "https://api.imgbb.com/1/upload")
	v.SetDefault("cloudinary.folder", "user_uploads")
	v.SetDefault("kafka.upload_topic", "user_uploads.events")
	v.SetDefault("kafka.group_id", "upload-moderation")
}

// Validate rejects combinations that cannot start.
func (c *Config) Validate() error {
	switch c.DocStore.Backend {
	case BackendMemory:
	case BackendFirestore:
		if c.Firebase.ProjectID == "" {
			return errors.New("config: FIREBASE_PROJECT_ID is required for the firestore backend")
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			return errors.New("config: MONGO_URI is required for the mongo backend")
		}
	default:
		return fmt.Errorf("config: unknown DOCSTORE %q", c.DocStore.Backend)
	}

	switch c.Auth.Provider {
	case AuthLocal:
	case AuthFirebase:
		if c.Firebase.APIKey == "" {
			return errors.New("config: FIREBASE_API_KEY is required for firebase sign-in")
		}
	default:
		return fmt.Errorf("config: unknown AUTH_PROVIDER %q", c.Auth.Provider)
	}

	switch c.Images.Host {
	case HostImgBB:
		if c.ImgBB.APIKey == "" {
			return errors.New("config: IMGBB_API_KEY is required for the imgbb image host")
		}
	case HostCloudinary:
		if c.Cloudinary.CloudName == "" {
			return errors.New("config: CLOUDINARY_CLOUD_NAME is required for the cloudinary image host")
		}
	case HostGCS:
		if c.Firebase.StorageBucket == "" {
			return errors.New("config: FIREBASE_STORAGE_BUCKET is required for the gcs image host")
		}
	case HostLocal:
	default:
		return fmt.Errorf("config: unknown IMAGE_HOST %q", c.Images.Host)
	}

	if c.Env == "production" && c.Auth.JWTSecret == devJWTSecret {
		return errors.New("config: JWT_SECRET must be set in production")
	}
	if c.Images.MaxUploadSizeMB <= 0 {
		return errors.New("config: MAX_UPLOAD_SIZE_MB must be positive")
	}
	return nil
}

// MaxUploadBytes is the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Images.MaxUploadSizeMB * 1024 * 1024
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
