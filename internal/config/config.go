package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		DefaultLanguage  string   `env:"LANG,default=en"`
		EnabledHandlers  []string `env:"HANDLERS,default=shield"`
		LogLevel         int      `env:"LOG_LEVEL,default=2"`
		DotPath          string   `env:"DOT_PATH,default=~/.anjani"`
		MetricsAddr      string   `env:"METRICS_ADDR,default=:2112"`
		Shield           Shield
		Classifier       Classifier
	}

	Shield struct {
		CASBaseURL       string  `env:"CAS_BASE_URL,default=https://api.cas.chat"`
		SpamWatchBaseURL string  `env:"SPAMWATCH_BASE_URL,default=https://api.spamwatch.org"`
		SpamWatchToken   string  `env:"SPAMWATCH_TOKEN"`
		LogChannelID     int64   `env:"SHIELD_LOG_CHANNEL_ID"`
		FederationID     string  `env:"SHIELD_FEDERATION_ID,default=AnjaniSpamShield"`
		StaffIDs         []int64 `env:"SHIELD_STAFF_IDS"`
	}

	Classifier struct {
		Type      string `env:"CLASSIFIER_TYPE,default=none"`
		ModelsDir string `env:"CLASSIFIER_MODELS_DIR,default=models"`
		ModelName string `env:"CLASSIFIER_MODEL"`
		APIKey    string `env:"CLASSIFIER_API_KEY"`
		BaseURL   string `env:"CLASSIFIER_API_URL,default=https://api.openai.com/v1"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("ANJANI_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			globalErr = fmt.Errorf("get user home directory: %w", err)
			return
		}
		cfg.DotPath = strings.Replace(cfg.DotPath, "~", home, 1)
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}

// IsStaff reports whether the user is on the process-wide staff list.
func (s Shield) IsStaff(userID int64) bool {
	for _, id := range s.StaffIDs {
		if id == userID {
			return true
		}
	}
	return false
}
