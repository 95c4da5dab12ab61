package watchdog

import (
	"context"
	"time"

	"golang.org/x/xerrors"

	"github.com/khaledhikmat/aicam-go/model"
	"github.com/khaledhikmat/aicam-go/service/config"
	"github.com/khaledhikmat/aicam-go/service/lgr"
)

type timedService struct {
	CanxCtx      context.Context
	SubsCtx      context.Context
	SubsCancel   context.CancelFunc
	StallChannel chan model.StallEvent
	CfgSvc       config.IService
}

// NewTimed builds a watchdog that periodically samples the subscribed probe
// and emits a stall event when capture goes quiet past the configured
// timeout. A zero probe time means capture has not started; it never stalls.
func NewTimed(canxCtx context.Context, cfgSvc config.IService) IService {
	return &timedService{
		CanxCtx: canxCtx,
		CfgSvc:  cfgSvc,
	}
}

func (svc *timedService) Subscribe(probe func() time.Time) (<-chan model.StallEvent, error) {
	if svc.SubsCtx != nil {
		return nil, xerrors.New("watchdog already subscribed. Unsubscribe first")
	}

	// Created on first subscribe and reused across subscriptions so the
	// consumer end stays valid.
	if svc.StallChannel == nil {
		svc.StallChannel = make(chan model.StallEvent, 1)
	}

	subsCtx, subsCancel := context.WithCancel(svc.CanxCtx)
	svc.SubsCtx = subsCtx
	svc.SubsCancel = subsCancel

	timeout := time.Duration(svc.CfgSvc.GetStallTimeout()) * time.Second
	interval := timeout / 10
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	if interval > time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-subsCtx.Done():
				lgr.Logger.Info("watchdog subscription cancelled")
				return
			case <-ticker.C:
				last := probe()
				if last.IsZero() {
					continue
				}
				if elapsed := time.Since(last); elapsed > timeout {
					select {
					case svc.StallChannel <- model.StallEvent{LastFrame: last, Elapsed: elapsed}:
					default:
						// an unconsumed stall is already pending
					}
				}
			}
		}
	}()

	return svc.StallChannel, nil
}

func (svc *timedService) Unsubscribe() error {
	if svc.SubsCtx == nil {
		return xerrors.New("not subscribed yet. Subscribe first")
	}

	svc.cleanup()
	return nil
}

func (svc *timedService) cleanup() {
	if svc.SubsCancel != nil {
		svc.SubsCancel()
		svc.SubsCtx = nil
		svc.SubsCancel = nil
	}
}
