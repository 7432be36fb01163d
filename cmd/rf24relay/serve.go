package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/backkem/rf24relay/pkg/discovery"
	"github.com/backkem/rf24relay/pkg/frame"
	"github.com/backkem/rf24relay/pkg/gateway"
	"github.com/backkem/rf24relay/pkg/identity"
	"github.com/backkem/rf24relay/pkg/radio"
	"github.com/backkem/rf24relay/pkg/registry"
	"github.com/backkem/rf24relay/pkg/relay"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

// serve wires the relay from cfg and blocks until ctx is done.
func serve(ctx context.Context, cfg Config) error {
	lf := cfg.LoggerFactory()
	log := lf.NewLogger("rf24relay")

	id, created, err := identity.LoadOrCreate(cfg.Paths.Identity, passphrase())
	if err != nil {
		return err
	}
	if created {
		log.Infof("Generated identity %s in %s", id, cfg.Paths.Identity)
	} else {
		log.Infof("Loaded identity %s", id)
	}

	channel, err := radio.ParseChannel(cfg.Radio.Channel)
	if err != nil {
		return err
	}

	reg := registry.New(registry.Config{
		Storage:       registry.NewFileStorage(cfg.Paths.Registry),
		Deriver:       id.Keys,
		LoggerFactory: lf,
	})

	queue := radio.NewQueue(radio.QueueConfig{Limit: cfg.Radio.QueueLimit, LoggerFactory: lf})
	serial, err := radio.NewSerial(radio.SerialConfig{
		Device:        cfg.Radio.Device,
		BaudRate:      cfg.Radio.BaudRate,
		Channel:       channel,
		Server:        id.Server,
		Network:       id.Network,
		FrameHandler:  queue.Handle,
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}

	var sinks relay.Fanout
	var closers []func() error

	if cfg.MQTT.Broker != "" {
		m, err := newMQTT(ctx, cfg.MQTT, lf)
		if err != nil {
			return err
		}
		sinks = append(sinks, m)
		closers = append(closers, m.Close)
	}

	var hub *relay.Hub
	if cfg.WebSocket.Listen != "" {
		enc, err := relay.ParseEncoding(cfg.WebSocket.Encoding)
		if err != nil {
			return err
		}
		if hub, err = relay.NewHub(relay.HubConfig{Encoding: enc, LoggerFactory: lf}); err != nil {
			return err
		}
		sinks = append(sinks, hub)
		closers = append(closers, hub.Close)
	}
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warnf("Close: %v", err)
			}
		}
	}()

	gw, err := gateway.New(gateway.Config{
		Transport:       serial,
		Queue:           queue,
		Identity:        id,
		Registry:        reg,
		Sink:            sinks,
		AssemblyTimeout: cfg.Protocol.AssemblyTimeout,
		BeaconInterval:  cfg.Protocol.BeaconInterval,
		Throttle:        cfg.Protocol.Throttle,
		LoggerFactory:   lf,
	})
	if err != nil {
		return err
	}
	if err := gw.Start(ctx); err != nil {
		return err
	}
	log.Infof("Relay running on %s, channel %s", cfg.Radio.Device, channel)

	var srv *http.Server
	var adv *discovery.Advertiser
	if hub != nil {
		ln, err := net.Listen("tcp", cfg.WebSocket.Listen)
		if err != nil {
			_ = gw.Stop()
			return err
		}
		mux := http.NewServeMux()
		mux.Handle(cfg.WebSocket.Path, hub)
		mux.Handle("/", gw.StatusHandler())
		srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("HTTP server: %v", err)
			}
		}()
		log.Infof("Streaming readings on ws://%s%s", ln.Addr(), cfg.WebSocket.Path)

		if cfg.WebSocket.MDNS {
			adv, err = advertise(ln.Addr(), id, channel, cfg.WebSocket, lf)
			if err != nil {
				log.Warnf("mDNS advertisement disabled: %v", err)
			}
		}
	}

	<-ctx.Done()
	log.Info("Shutting down")

	var errs []error
	if adv != nil {
		errs = append(errs, adv.Close())
	}
	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, srv.Shutdown(sctx))
		cancel()
	}
	errs = append(errs, gw.Stop())
	return errors.Join(errs...)
}

func newMQTT(ctx context.Context, c MQTTConfig, lf logging.LoggerFactory) (*relay.MQTT, error) {
	enc, err := relay.ParseEncoding(c.Encoding)
	if err != nil {
		return nil, err
	}
	m, err := relay.NewMQTT(relay.MQTTConfig{
		Broker:        c.Broker,
		ClientID:      c.ClientID,
		Username:      c.Username,
		Password:      c.Password,
		TopicPrefix:   c.TopicPrefix,
		QoS:           c.QoS,
		Retained:      c.Retained,
		Encoding:      enc,
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, err
	}
	if err := m.Connect(ctx); err != nil {
		return nil, fmt.Errorf("mqtt %s: %w", c.Broker, err)
	}
	return m, nil
}

func advertise(addr net.Addr, id *identity.Identity, channel radio.Channel, c WebSocketConfig, lf logging.LoggerFactory) (*discovery.Advertiser, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("unexpected listener address %s", addr)
	}
	adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		Instance:      c.Instance,
		Port:          tcp.Port,
		LoggerFactory: lf,
	})
	if err != nil {
		return nil, err
	}
	txt := discovery.RelayTXT{
		Version:  frame.ProtocolVersion,
		Server:   id.Server,
		Channel:  channel,
		Path:     c.Path,
		Encoding: encodingName(c.Encoding),
	}
	if err := adv.Start(txt); err != nil {
		adv.Close()
		return nil, err
	}
	return adv, nil
}

func encodingName(s string) string {
	enc, err := relay.ParseEncoding(s)
	if err != nil {
		return ""
	}
	return enc.String()
}
