// Package buildinfo exposes build metadata injected through ldflags:
//
//	go build -ldflags "-X github.com/yndnr/authcore-go/internal/infra/buildinfo.Version=v1.2.0"
package buildinfo
