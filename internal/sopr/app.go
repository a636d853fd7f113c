package sopr

import (
	"context"
	"fmt"
	gzsvc "github.com/zeromicro/go-zero/core/service"
	"runtime/debug"
	"sopr-stats-sol/internal/pkg/logger"
	"sopr-stats-sol/internal/sopr/analytics"
	"sopr-stats-sol/internal/sopr/pushworker"
	"sopr-stats-sol/internal/sopr/types"
	"sopr-stats-sol/internal/svc"
	"sync/atomic"
	"time"
)

// App 组装请求队列、计算引擎、会话历史和可选的 Kafka 推送
type App struct {
	svc *svc.ServiceContext
	sg  *gzsvc.ServiceGroup

	engine          *analytics.Engine
	sessions        *SessionStore
	kafkaPushWorker *pushworker.KafkaPushWorker

	computeTimeout time.Duration
	isReady        atomic.Bool
	pushedCount    atomic.Int64
}

// NewApp 构造应用实例
func NewApp(svc *svc.ServiceContext) (*App, error) {
	cfg := svc.Cfg
	engine, err := analytics.NewEngine(svc.Prices, svc.Holders, svc.Txs, cfg.Sopr.ToEngineOptions())
	if err != nil {
		return nil, err
	}

	sessions, err := NewSessionStore(cfg.Sopr.SessionCapacity, engine.NewHistory)
	if err != nil {
		engine.Close()
		return nil, err
	}

	app := &App{
		svc:            svc,
		sg:             gzsvc.NewServiceGroup(),
		engine:         engine,
		sessions:       sessions,
		computeTimeout: cfg.Sopr.ComputeTimeout,
	}
	if svc.Queue != nil {
		app.sg.Add(svc.Queue)
	}

	// Kafka 推送可选
	if cfg.KafkaProducerConfig != nil {
		w, err := pushworker.NewKafkaPushWorker(cfg.KafkaProducerConfig, app)
		if err != nil {
			logger.Errorf("[App] failed to create KafkaPushWorker: %v", err)
			engine.Close()
			return nil, err
		}
		app.kafkaPushWorker = w
		app.sg.Add(w)
	}

	return app, nil
}

func (app *App) Start() {
	logger.Infof("[App] starting, kafka push enabled=%v", app.kafkaPushWorker != nil)
	app.isReady.Store(true)
	app.sg.Start()
}

func (app *App) Stop() {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[App] panic during Stop: %v\n%s", r, debug.Stack())
		}
	}()

	app.isReady.Store(false)
	app.sg.Stop()
	app.engine.Close()
	logger.Infof("[App] stopped, pushed %d results", app.pushedCount.Load())
}

func (app *App) IsReady() bool {
	return app.isReady.Load()
}

func (app *App) Sessions() *SessionStore {
	return app.sessions
}

// Compute 计算 token 的 SOPR 并写入会话历史
//
// 地址非法时在任何网络请求之前返回 types.ErrInvalidAddress。
func (app *App) Compute(ctx context.Context, token, session string, progress analytics.ProgressFunc) (*types.SoprResult, error) {
	pk, err := types.ValidateAddress(token)
	if err != nil {
		return nil, err
	}
	session, err = NormalizeSession(session)
	if err != nil {
		return nil, err
	}

	if app.computeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, app.computeTimeout)
		defer cancel()
	}

	res, err := app.engine.ComputeSopr(ctx, pk.String(), app.sessions.History(session), progress)
	if err != nil {
		return nil, fmt.Errorf("compute sopr for %s: %w", pk, err)
	}
	res.Session = session

	if app.kafkaPushWorker != nil {
		// 推送内容在此处生成快照，调用方之后可以自由修改 res
		task, err := pushworker.NewPushTask(res)
		if err != nil {
			logger.Warnf("[App] skip kafka push: %v", err)
		} else {
			app.kafkaPushWorker.Add([]*pushworker.PushTask{task})
		}
	}
	return res, nil
}

// OnSoprPushed Kafka 投递成功回调
func (app *App) OnSoprPushed(ids []pushworker.MsgID) {
	app.pushedCount.Add(int64(len(ids)))
	logger.Debugf("[App] pushed %d sopr results", len(ids))
}

// ResetSession 清空会话历史，返回会话是否存在
func (app *App) ResetSession(session string) (bool, error) {
	session, err := NormalizeSession(session)
	if err != nil {
		return false, err
	}
	return app.sessions.Reset(session), nil
}
