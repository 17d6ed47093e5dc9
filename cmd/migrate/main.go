package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/retroquest/storefront-backend/pkg/config"
	"github.com/retroquest/storefront-backend/pkg/db"
	"github.com/retroquest/storefront-backend/pkg/logger"
	"github.com/retroquest/storefront-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "up|down|to|pending|new|check")
	name := flag.String("name", "", "migration name for -cmd=new")
	target := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	ctx := logg.WithField(context.Background(), "cmd", *cmd)

	// new and check work on the schema alone.
	switch *cmd {
	case "new":
		path, err := migrate.Scaffold(migrate.SourceDir, *name, time.Now())
		exitOn(ctx, logg, "scaffold migration", err)
		fmt.Println(path)
		return
	case "check":
		exitOn(ctx, logg, "validate schema", migrate.Validate(migrate.Schema()))
		fmt.Println("schema ok")
		return
	}

	cfg, err := config.Load()
	exitOn(ctx, logg, "load config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(context.Background(), map[string]any{"cmd": *cmd, "env": cfg.App.Env})

	if cfg.DB.IsSQLite() {
		exitOn(ctx, logg, "select driver", fmt.Errorf("goose migrations target postgres; sqlite stores use RETROQUEST_AUTO_MIGRATE"))
	}

	client, err := db.New(ctx, cfg.DB, logg)
	exitOn(ctx, logg, "connect database", err)
	defer client.Close()

	sqlDB, err := client.DB().DB()
	exitOn(ctx, logg, "open sql handle", err)

	migrator, err := migrate.New(sqlDB, logg)
	exitOn(ctx, logg, "build migrator", err)

	switch *cmd {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	case "to":
		err = migrator.To(ctx, *target)
	case "pending":
		var pending []int64
		pending, err = migrator.Pending(ctx)
		for _, v := range pending {
			fmt.Println(v)
		}
	default:
		err = fmt.Errorf("unknown -cmd %q", *cmd)
	}
	exitOn(ctx, logg, *cmd, err)
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, step+" failed", err)
	os.Exit(1)
}
