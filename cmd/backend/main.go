// cmd/backend is the process entry point: minimal flag parsing to locate a
// config file, wiring every component into one server.RunGroup
// ("CLI surface out of core scope" -- this provides only what's needed to
// start the process against a data directory).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/duskline/backend/3rdparty/glog"
	"github.com/duskline/backend/backup"
	"github.com/duskline/backend/cache"
	"github.com/duskline/backend/chat"
	"github.com/duskline/backend/config"
	"github.com/duskline/backend/db"
	"github.com/duskline/backend/geo"
	"github.com/duskline/backend/keys"
	"github.com/duskline/backend/moderation"
	"github.com/duskline/backend/notify"
	"github.com/duskline/backend/server"
	"github.com/duskline/backend/stats"
	"github.com/duskline/backend/writer"
)

func main() {
	configPath := flag.String("config", "./duskline.toml", "path to the TOML config file")
	allowlistPath := flag.String("allowlist", "", "optional path to the moderation name allowlist CSV")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		glog.Fatalf("load config: %v", err)
	}

	databases, err := db.Open(cfg.DataDir)
	if err != nil {
		glog.Fatalf("open databases: %v", err)
	}
	defer databases.Close()

	arena := cache.NewArena()
	if err := warmCache(databases, arena); err != nil {
		glog.Fatalf("warm cache: %v", err)
	}

	index, err := geo.NewIndex(cfg.Location)
	if err != nil {
		glog.Fatalf("open location index: %v", err)
	}
	defer index.Close()
	if err := warmIndex(databases, index); err != nil {
		glog.Fatalf("warm location index: %v", err)
	}

	hub := notify.NewHub(arena)
	sessions := server.NewSessions(databases.Write, databases.Read, arena, hub)
	chatSvc := chat.New(databases.Write, databases.Read, hub, cfg.Limits)
	keyReg := keys.New(databases.Write, databases.Read, cfg.Limits.MaxPublicKeyCount)
	ephemeral := server.NewEphemeralGate(arena, time.Duration(cfg.Limits.MinEphemeralWaitSeconds)*time.Second)
	rendezvous := backup.NewRendezvous()

	allowlist := &moderation.Allowlist{}
	if *allowlistPath != "" {
		allowlist, err = moderation.LoadAllowlistCSV(*allowlistPath)
		if err != nil {
			glog.Fatalf("load moderation allowlist: %v", err)
		}
	}
	modPipeline := moderation.New(databases.Write, databases.Read, allowlist, hub)

	metricsRegistry := prometheus.NewRegistry()
	reporter := stats.NewReporter(metricsRegistry)
	_ = reporter // wired for future API-usage/IP/client-version observation hooks

	apiUsage := stats.NewAPIUsageAggregator()
	ipUsage := stats.NewIPUsageAggregator()
	clientVersion := stats.NewClientVersionAggregator()
	geoLookup := stats.NewStaticTableLookup(nil)
	flusher := stats.NewFlusher(databases.Write, apiUsage, ipUsage, clientVersion, geoLookup, cfg.Server.StatsFlushEvery)

	writeRunner := writer.NewRunner(cfg.Server.WriteQueueDepth)
	writeRunner.OnCommit(func(interface{}) {}) // cache-diff/location-index/events stages plug in here

	httpListener := server.NewHTTPListener(cfg.Server.HTTPAddr, sessions, keyReg, modPipeline,
		databases.Write, cfg.Admin.OperatorTokenSecret, metricsRegistry)
	wsListener := server.NewWebSocketListener(cfg.Server.WSAddr, sessions, chatSvc, keyReg,
		databases.Read, ephemeral, rendezvous, hub)

	group := server.NewRunGroup()
	group.Add(newWriteRunnerRunner(writeRunner))
	group.Add(newSweeperRunner(geo.NewSweeper(index, cfg.Location.LastSeenHorizon, cfg.Server.LocationSweepEvery)))
	group.Add(flusher)
	group.Add(httpListener)
	group.Add(wsListener)

	glog.Infof("duskline backend starting: http=%s ws=%s data=%s", cfg.Server.HTTPAddr, cfg.Server.WSAddr, cfg.DataDir)
	if err := group.Run(); err != nil {
		glog.Errorf("exiting: %v", err)
		os.Exit(1)
	}
}

func warmCache(d *db.Databases, arena *cache.Arena) error {
	ids, err := d.Read.AllAccountIds()
	if err != nil {
		return err
	}
	for _, id := range ids {
		arena.Insert(id, &cache.Entry{Id: id})
	}
	return nil
}

func warmIndex(d *db.Databases, index *geo.Index) error {
	ids, err := d.Read.AllAccountIds()
	if err != nil {
		return err
	}
	for _, id := range ids {
		acct, err := d.Read.AccountByInternalId(id.Row())
		if err != nil || !acct.Visibility.VisibleInLocationIndex() {
			continue
		}
		profile, err := d.Read.Profile(id)
		if err != nil {
			continue
		}
		index.Insert(id.AccountId(), geo.ProfileData{
			Age:             int(profile.Age),
			Attributes:      profile.Attributes,
			EditTime:        profile.ProfileEditedAt,
			ContentEditTime: profile.ProfileContentEditedAt,
			CreatedTime:     acct.CreatedAt,
			Visibility:      acct.Visibility,
			LastSeen:        profile.LastSeenAt,
			UnlimitedLikes:  profile.UnlimitedLikes,
			Lat:             profile.Lat,
			Lon:             profile.Lon,
		})
	}
	return nil
}

// writeRunnerRunner adapts writer.Runner's context-based Run to the
// server.Runner shape the RunGroup supervises.
type writeRunnerRunner struct {
	r      *writer.Runner
	ctx    context.Context
	cancel context.CancelFunc
}

func newWriteRunnerRunner(r *writer.Runner) *writeRunnerRunner {
	ctx, cancel := context.WithCancel(context.Background())
	return &writeRunnerRunner{r: r, ctx: ctx, cancel: cancel}
}

func (a *writeRunnerRunner) Name() string { return "write-runner" }
func (a *writeRunnerRunner) Run() error   { a.r.Run(a.ctx); return nil }
func (a *writeRunnerRunner) Stop(error) {
	a.cancel()
	a.r.Wait()
}

// sweeperRunner adapts geo.Sweeper's no-arg Stop to the server.Runner shape.
type sweeperRunner struct{ s *geo.Sweeper }

func newSweeperRunner(s *geo.Sweeper) *sweeperRunner { return &sweeperRunner{s: s} }

func (a *sweeperRunner) Name() string { return "location-sweeper" }
func (a *sweeperRunner) Run() error   { a.s.Run(); return nil }
func (a *sweeperRunner) Stop(error)   { a.s.Stop() }
