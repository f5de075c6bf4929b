// Package di contains dependency injection tokens for the api context.
package di

import (
	"github.com/fd1az/arbguard/business/api/rest"
	"github.com/fd1az/arbguard/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Handler = di.NewToken[*rest.Handler]("api.Handler")
	Server  = di.NewToken[*rest.Server]("api.Server")
)

func GetHandler(c di.ServiceRegistry) *rest.Handler {
	return di.GetToken(c, Handler)
}

func GetServer(c di.ServiceRegistry) *rest.Server {
	return di.GetToken(c, Server)
}
