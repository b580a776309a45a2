package helper

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/naijaswap/bridge/internal/errHandler"
)

type HelperRepository struct {
	WG         *sync.WaitGroup
	errHandler *errHandler.ErrorRepository
}

func New(wg *sync.WaitGroup, errHandler *errHandler.ErrorRepository) *HelperRepository {
	return &HelperRepository{
		WG:         wg,
		errHandler: errHandler,
	}
}

func (h *HelperRepository) BackgroundTask(r *http.Request, fn func() error) {
	// h.WG.Add(1)

	go func() {
		// defer h.WG.Done()

		defer func() {
			err := recover()
			if err != nil {
				h.errHandler.ReportServerError(nil, fmt.Errorf("%s", err))
			}
		}()

		err := fn()
		if err != nil {
			h.errHandler.ReportServerError(nil, err)
		}
	}()
}
