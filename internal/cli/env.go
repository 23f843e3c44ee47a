package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sadopc/dwell/internal/config"
	"github.com/sadopc/dwell/internal/logger"
	"github.com/sadopc/dwell/internal/notify"
	"github.com/sadopc/dwell/internal/store"
)

// env is the loaded configuration and open store for one command run.
type env struct {
	cfg    *config.Config
	store  *store.Store
	dbPath string
}

// loadConfig reads the config file and applies the log level.
func (o *options) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	level, ok := logger.ParseLogLevel(cfg.LogLevel)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	logger.SetLevel(level)
	return cfg, nil
}

// open loads the config and opens the database. A newly created database
// takes its default terms from the config file.
func (o *options) open() (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	dbPath := o.dbPath
	if dbPath == "" {
		def, err := store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
		dbPath = cfg.DatabasePath(def)
	}

	_, statErr := os.Stat(dbPath)
	fresh := errors.Is(statErr, os.ErrNotExist)

	s, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if fresh {
		if err := seedDefaults(s, cfg); err != nil {
			s.Close()
			return nil, err
		}
	}
	return &env{cfg: cfg, store: s, dbPath: dbPath}, nil
}

func seedDefaults(s *store.Store, cfg *config.Config) error {
	if err := s.SetDefaultTerms(cfg.Terms()); err != nil {
		return fmt.Errorf("seed default terms: %w", err)
	}
	if err := s.SetSetting(store.SettingInvoiceDueDays, strconv.Itoa(cfg.Defaults.InvoiceDueDays)); err != nil {
		return fmt.Errorf("seed invoice due days: %w", err)
	}
	return nil
}

func (e *env) Close() error {
	logger.Sync()
	return e.store.Close()
}

// logToFile redirects logging to dwell.log next to the database so the
// dashboard's alternate screen stays clean.
func (e *env) logToFile() (func(), error) {
	path := filepath.Join(filepath.Dir(e.dbPath), "dwell.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	e.logTo(f)
	return func() {
		logger.Sync()
		f.Close()
	}, nil
}

func (e *env) logTo(w io.Writer) {
	logger.SetLogger(logger.New(nil, w))
}

// publisher connects to the configured MQTT broker, or discards events
// when none is set.
func (e *env) publisher(ctx context.Context) (notify.Publisher, error) {
	if e.cfg.MQTT.Broker == "" {
		return notify.NopPublisher{}, nil
	}
	pub, err := notify.NewRealPublisher(e.cfg.MQTT.Broker, e.cfg.MQTT.ClientID, e.cfg.MQTT.TopicPrefix)
	if err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}
	logger.InfoKV(ctx, "publishing events", "broker", e.cfg.MQTT.Broker, "prefix", e.cfg.MQTT.TopicPrefix)
	return pub, nil
}
