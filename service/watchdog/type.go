package watchdog

import (
	"time"

	"github.com/khaledhikmat/aicam-go/model"
)

type IService interface {
	Subscribe(probe func() time.Time) (<-chan model.StallEvent, error)
	Unsubscribe() error
}
