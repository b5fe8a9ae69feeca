// Command replicad wires the request lifecycle engine (bitmap, metadata,
// transfer log, wire transport, request state machine, device, workers)
// against a file-backed local target and a single TCP peer, and serves
// Prometheus metrics for the result.
//
// The block-device registration, ioctl surface, and kernel configuration
// path named in spec §1 as external collaborators have no retrieved
// teacher daemon main to ground a reimplementation on; this entrypoint
// stands in only the pieces §1 lists as in-scope (everything this package
// imports) rather than inventing a kernel-facing shim (see DESIGN.md).
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mirrorblock/replicad/cmn"
	"github.com/mirrorblock/replicad/cmn/nlog"
	"github.com/mirrorblock/replicad/device"
	"github.com/mirrorblock/replicad/metrics"
	"github.com/mirrorblock/replicad/transport"
	"github.com/mirrorblock/replicad/worker"
)

func main() {
	var (
		minor       = flag.Int("minor", 0, "device minor number")
		backingPath = flag.String("backing", "", "path to the local backing file")
		metaDir     = flag.String("meta-dir", "./meta_data", "directory for the metadata record")
		nbits       = flag.Uint64("nbits", 1<<20, "bitmap size in BlockSize-granularity bits")
		peerAddr    = flag.String("peer", "", "peer host:port for the data+meta channel pair (empty = standalone)")
		listenAddr  = flag.String("listen", "", "address to accept the peer's data+meta connections on")
		protocol    = flag.String("protocol", "C", "replication protocol: A, B, or C")
		metricsAddr = flag.String("metrics-addr", ":9120", "address to serve /metrics on")
	)
	flag.Parse()

	cfg := cmn.DefaultConfig()
	switch *protocol {
	case "A":
		cfg.Protocol = cmn.ProtocolA
	case "B":
		cfg.Protocol = cmn.ProtocolB
	case "C":
		cfg.Protocol = cmn.ProtocolC
	default:
		nlog.Criticalf("replicad: unknown protocol %q, defaulting to C", *protocol)
	}
	cmn.GCO.Update(cfg)

	if *backingPath == "" {
		nlog.Criticalf("replicad: -backing is required")
		os.Exit(1)
	}
	target, err := newFileTarget(*backingPath)
	if err != nil {
		nlog.Criticalf("replicad: opening backing file: %v", err)
		os.Exit(1)
	}
	defer target.Close()

	var peer *device.PeerConn
	if *peerAddr != "" || *listenAddr != "" {
		peer, err = dialOrAcceptPeer(*peerAddr, *listenAddr, cfg.Timeout)
		if err != nil {
			nlog.Criticalf("replicad: establishing peer channels: %v", err)
			os.Exit(1)
		}
	}

	dev := device.New(*minor, target, *metaDir, cfg.MaxEpochSize, *nbits, 12, peer)
	dev.SetCState(device.StandAlone)
	dev.SetRole(device.Primary)

	collectors := metrics.NewCollectors(dev)
	if err := collectors.Register(prometheus.DefaultRegisterer); err != nil {
		nlog.Warningf("replicad: metrics registration failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var group *worker.Group
	if peer != nil {
		dev.SetCState(device.Connected)
		pending := worker.NewPendingTable()
		dev.AckTracker = pending
		tasks := []worker.Task{
			&worker.Receiver{Dev: dev},
			&worker.Asender{Dev: dev, Pending: pending},
			&worker.Syncer{Dev: dev},
		}
		group = worker.NewGroup(ctx, tasks...)
	}

	httpSrv := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nlog.Errorf("replicad: metrics server: %v", err)
		}
	}()

	nlog.Infof("replicad: device %d ready, protocol=%v cstate=%v", dev.Minor, cfg.Protocol, dev.CState())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	nlog.Infof("replicad: shutting down device %d", dev.Minor)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	cancel()
	if group != nil {
		if err := group.Stop(); err != nil {
			nlog.Warningf("replicad: worker group stop: %v", err)
		}
	}
}

// dialOrAcceptPeer establishes the data+meta channel pair: one side dials,
// the other accepts, exactly mirroring how the two-socket handshake in
// spec §4.D is set up out of band from the core itself.
func dialOrAcceptPeer(dialAddr, listenAddr string, timeout time.Duration) (*device.PeerConn, error) {
	dial := func(addr string) (net.Conn, net.Conn, error) {
		dataConn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			return nil, nil, err
		}
		metaConn, err := net.DialTimeout("tcp", addr, timeout)
		if err != nil {
			dataConn.Close()
			return nil, nil, err
		}
		return dataConn, metaConn, nil
	}
	accept := func(addr string) (net.Conn, net.Conn, error) {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, nil, err
		}
		defer ln.Close()
		dataConn, err := ln.Accept()
		if err != nil {
			return nil, nil, err
		}
		metaConn, err := ln.Accept()
		if err != nil {
			dataConn.Close()
			return nil, nil, err
		}
		return dataConn, metaConn, nil
	}

	var dataConn, metaConn net.Conn
	var err error
	if listenAddr != "" {
		dataConn, metaConn, err = accept(listenAddr)
	} else {
		dataConn, metaConn, err = dial(dialAddr)
	}
	if err != nil {
		return nil, err
	}

	peer := &device.PeerConn{
		Data:         transport.NewDataChannel(dataConn, timeout, func() {}),
		Meta:         transport.NewMetaChannel(metaConn, timeout, func() {}),
		DiskUpToDate: true,
	}
	return peer, nil
}
