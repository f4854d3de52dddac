package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ex-paimon/pkg/paimon"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	defaultRuntimeSessionFile = ".cache/telegram/session.json"
	defaultRuntimeAuthTimeout = time.Minute
)

// RuntimeConfig is the JSON payload of one telegram driver definition.
type RuntimeConfig struct {
	AppID          int    `json:"app_id"`
	AppHash        string `json:"app_hash"`
	BotToken       string `json:"bot_token"`
	SessionFile    string `json:"session_file"`
	PublishTimeout string `json:"publish_timeout"`
	RPCTimeout     string `json:"rpc_timeout"`
	AuthTimeout    string `json:"auth_timeout"`
	UpdateBuffer   int    `json:"update_buffer"`
	// MTProtoLogLevel enables gotd client logs ("debug", "info", "warn",
	// "error"); empty keeps them off.
	MTProtoLogLevel string `json:"mtproto_log_level"`
}

type parsedRuntimeConfig struct {
	appID           int
	appHash         string
	botToken        string
	sessionFile     string
	publishTimeout  time.Duration
	rpcTimeout      time.Duration
	authTimeout     time.Duration
	updateBuffer    int
	mtprotoLogLevel string
}

// BuildRuntimeFromConfig builds one telegram driver runtime authorized as
// a bot.
func BuildRuntimeFromConfig(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
) (paimon.EventSource, paimon.Driver, paimon.SinkDispatcher, error) {
	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return paimon.EventSource{}, nil, nil, fmt.Errorf("parse telegram runtime config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = DriverType
	}

	sessionStorage, err := newGotdSessionStorage(cfg.sessionFile)
	if err != nil {
		return paimon.EventSource{}, nil, nil, fmt.Errorf("new gotd session storage: %w", err)
	}
	mtprotoLogger, err := newMTProtoLogger(cfg.mtprotoLogLevel)
	if err != nil {
		return paimon.EventSource{}, nil, nil, fmt.Errorf("new mtproto logger: %w", err)
	}

	updates := NewGotdUpdateChannel(cfg.updateBuffer)
	client := gotdtelegram.NewClient(cfg.appID, cfg.appHash, gotdtelegram.Options{
		UpdateHandler:  updates,
		SessionStorage: sessionStorage,
		Logger:         mtprotoLogger,
	})

	peers := NewPeerCache()
	identity := &BotIdentity{}
	reportAsync := func(ctx context.Context, err error) {
		logger.WarnContext(ctx, "telegram update skipped", "error", err)
	}

	source, err := NewGotdBotSource(
		botClient{
			client: client,
			authenticate: func(ctx context.Context) error {
				return authenticateBot(ctx, logger, client, identity, cfg)
			},
		},
		updates,
		NewDefaultGotdUpdateMapper(WithPeerCache(peers), WithBotIdentity(identity)),
		reportAsync,
	)
	if err != nil {
		return paimon.EventSource{}, nil, nil, fmt.Errorf("new gotd bot source: %w", err)
	}

	driver, err := NewDriver(
		source,
		NewDefaultDecoder(),
		WithName(name),
		WithPublishTimeout(cfg.publishTimeout),
		WithErrorHandler(reportAsync),
	)
	if err != nil {
		return paimon.EventSource{}, nil, nil, fmt.Errorf("new telegram driver: %w", err)
	}

	sinkRef := paimon.EventSink{Platform: DriverPlatform, ID: name}
	sink, err := NewOutboundDispatcher(
		client.API(),
		peers,
		WithOutboundTimeout(cfg.rpcTimeout),
		WithOutboundLogger(logger),
		WithSinkRef(sinkRef),
	)
	if err != nil {
		return paimon.EventSource{}, nil, nil, fmt.Errorf("new telegram sink dispatcher: %w", err)
	}

	return paimon.EventSource{Platform: DriverPlatform, ID: name}, driver, sink, nil
}

func parseRuntimeConfig(raw []byte) (parsedRuntimeConfig, error) {
	if len(raw) == 0 {
		return parsedRuntimeConfig{}, fmt.Errorf("missing config")
	}

	var parsed RuntimeConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	cfg := parsedRuntimeConfig{
		appID:           parsed.AppID,
		appHash:         strings.TrimSpace(parsed.AppHash),
		botToken:        strings.TrimSpace(parsed.BotToken),
		sessionFile:     strings.TrimSpace(parsed.SessionFile),
		publishTimeout:  defaultPublishTimeout,
		rpcTimeout:      defaultOutboundTimeout,
		authTimeout:     defaultRuntimeAuthTimeout,
		updateBuffer:    parsed.UpdateBuffer,
		mtprotoLogLevel: strings.TrimSpace(parsed.MTProtoLogLevel),
	}
	if cfg.sessionFile == "" {
		cfg.sessionFile = defaultRuntimeSessionFile
	}

	durations := []struct {
		field  string
		raw    string
		target *time.Duration
	}{
		{field: "publish_timeout", raw: parsed.PublishTimeout, target: &cfg.publishTimeout},
		{field: "rpc_timeout", raw: parsed.RPCTimeout, target: &cfg.rpcTimeout},
		{field: "auth_timeout", raw: parsed.AuthTimeout, target: &cfg.authTimeout},
	}
	for _, duration := range durations {
		value := strings.TrimSpace(duration.raw)
		if value == "" {
			continue
		}
		parsedDuration, err := time.ParseDuration(value)
		if err != nil {
			return parsedRuntimeConfig{}, fmt.Errorf("parse %s: %w", duration.field, err)
		}
		if parsedDuration <= 0 {
			return parsedRuntimeConfig{}, fmt.Errorf("parse %s: must be > 0", duration.field)
		}
		*duration.target = parsedDuration
	}

	switch {
	case cfg.appID <= 0:
		return parsedRuntimeConfig{}, fmt.Errorf("app_id must be > 0")
	case cfg.appHash == "":
		return parsedRuntimeConfig{}, fmt.Errorf("app_hash is required")
	case cfg.botToken == "":
		return parsedRuntimeConfig{}, fmt.Errorf("bot_token is required")
	case !strings.Contains(cfg.botToken, ":"):
		return parsedRuntimeConfig{}, fmt.Errorf("bot_token must look like <id>:<secret>")
	}
	if cfg.mtprotoLogLevel != "" {
		if _, err := zapcore.ParseLevel(cfg.mtprotoLogLevel); err != nil {
			return parsedRuntimeConfig{}, fmt.Errorf("parse mtproto_log_level: %w", err)
		}
	}

	return cfg, nil
}

func newMTProtoLogger(level string) (*zap.Logger, error) {
	if level == "" {
		return zap.NewNop(), nil
	}

	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse level %q: %w", level, err)
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parsed)

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}

	return logger.Named("mtproto"), nil
}

func newGotdSessionStorage(path string) (*session.FileStorage, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute session file path: %w", err)
	}
	sessionDir := filepath.Dir(absPath)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory %s: %w", sessionDir, err)
	}

	return &session.FileStorage{Path: absPath}, nil
}

// botClient runs the gotd client and authorizes before handing over.
type botClient struct {
	client       *gotdtelegram.Client
	authenticate func(ctx context.Context) error
}

// Run implements GotdClient.
func (c botClient) Run(ctx context.Context, fn func(runCtx context.Context) error) error {
	if err := c.client.Run(ctx, func(runCtx context.Context) error {
		if err := c.authenticate(runCtx); err != nil {
			return fmt.Errorf("authenticate bot: %w", err)
		}
		return fn(runCtx)
	}); err != nil {
		return fmt.Errorf("run gotd client: %w", err)
	}

	return nil
}

func authenticateBot(
	ctx context.Context,
	logger *slog.Logger,
	client *gotdtelegram.Client,
	identity *BotIdentity,
	cfg parsedRuntimeConfig,
) error {
	authCtx, cancel := context.WithTimeout(ctx, cfg.authTimeout)
	defer cancel()

	status, err := client.Auth().Status(authCtx)
	if err != nil {
		return fmt.Errorf("check auth status: %w", err)
	}
	if !status.Authorized {
		if _, err := client.Auth().Bot(authCtx, cfg.botToken); err != nil {
			return fmt.Errorf("bot login: %w", err)
		}
	}

	self, err := client.Self(authCtx)
	if err != nil {
		return fmt.Errorf("resolve bot account: %w", err)
	}
	username, _ := self.GetUsername()
	identity.SetUsername(username)

	logger.InfoContext(ctx, "telegram bot authorized",
		"username", username,
		"restored_session", status.Authorized,
		"session_file", cfg.sessionFile,
	)

	return nil
}
