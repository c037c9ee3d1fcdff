package adhoc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"SortyxServer/logger"
)

// Kiosk classes a registration server distinguishes.
const (
	KioskClassSorting = "sorting"
	KioskClassAudit   = "audit"
)

type RegisterRequest struct {
	Id         string `json:"id"`
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	KioskClass string `json:"kiosk_class"`
	Timestamp  int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type RegServerConfig struct {
	Host string
	Port int
}

var regServer RegServerConfig

// SetAddress points the heartbeat at the fleet registration server.
func SetAddress(host string, port int) {
	regServer = RegServerConfig{Host: host, Port: port}
}

func safeDoRequest(client *resty.Client, req RegisterRequest) (resp *resty.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register request panicked: %v", r)
		}
	}()
	url := fmt.Sprintf("http://%s:%d/api/register", regServer.Host, regServer.Port)
	return client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&RegisterResponse{}).
		Post(url)
}

// SendAliveMessage announces this kiosk to the registration server every 30
// seconds until ctx is cancelled. Failures are logged and retried on the next
// tick, the kiosk keeps serving either way.
func SendAliveMessage(id string, ip string, port int, kioskClass string, ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	client := resty.New().SetTimeout(5 * time.Second)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	announce := func() {
		req := RegisterRequest{
			Id:         id,
			IP:         ip,
			Port:       port,
			KioskClass: kioskClass,
			Timestamp:  time.Now().Unix(),
		}
		resp, err := safeDoRequest(client, req)
		if err != nil {
			logger.Log().Sugar().Warnf("register server unreachable: %v", err)
			return
		}
		if resp.StatusCode() != 200 {
			logger.Log().Sugar().Warnf("register server returned status %d", resp.StatusCode())
		}
	}

	announce()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Sugar().Info("heartbeat stopped")
			return
		case <-ticker.C:
			announce()
		}
	}
}
