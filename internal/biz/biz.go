package biz

import (
	"github.com/devricklin/feishu-relay/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Gate     *usecase.ScheduleGate
	Relay    *usecase.RelayUsecase
	Deletion *usecase.DeletionUsecase
	Edit     *usecase.EditUsecase
}
