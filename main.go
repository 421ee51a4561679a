package main

import (
	"flag"

	"github.com/fixkme/bitwheel/framework/app"
	"github.com/fixkme/bitwheel/framework/config"
	"github.com/fixkme/bitwheel/gate"
	"github.com/fixkme/bitwheel/mlog"
)

func main() {
	confFile := flag.String("config", "", "json config file, BITWHEEL_* env vars override it")
	flag.Parse()

	mlog.UseStdLogger(mlog.InfoLevel)
	if err := config.LoadConfig(*confFile, config.LoadConfigFromEnv); err != nil {
		mlog.Fatalf("load config: %v", err)
	}
	conf := config.Config
	if err := conf.InstallLogger(); err != nil {
		mlog.Fatalf("install logger: %v", err)
	}
	defer mlog.Sync()
	mlog.Infof("config:\n%s", conf.JsonFormat())

	server := gate.NewServer(gate.OptionsFromConfig(&conf.GateConfig))
	if err := app.DefaultApp().Run(server); err != nil {
		mlog.Errorf("app exited with error: %v", err)
	}
}
