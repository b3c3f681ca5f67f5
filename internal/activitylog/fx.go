package activitylog

import (
	"github.com/smallbiznis/licenseboard/internal/activitylog/repository"
	"github.com/smallbiznis/licenseboard/internal/activitylog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("activitylog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
