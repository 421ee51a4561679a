// Command timeoutbench runs the backend comparison matrix and prints a report.
package main

import (
	"flag"
	"os"

	"github.com/fixkme/bitwheel/bench"
	"github.com/fixkme/bitwheel/framework/config"
	"github.com/fixkme/bitwheel/mlog"
)

func main() {
	confFile := flag.String("config", "", "json config file, BITWHEEL_* env vars override it")
	jsonOut := flag.String("json", "", "write the report as json to this file, - for stdout")
	parallel := flag.Int("parallel", 0, "scenarios run concurrently, 0 keeps bench_parallel")
	flag.Parse()

	if err := config.LoadConfig(*confFile, config.LoadConfigFromEnv); err != nil {
		mlog.UseStdLogger(mlog.InfoLevel)
		mlog.Fatalf("load config: %v", err)
	}
	conf := config.Config
	if err := conf.InstallLogger(); err != nil {
		mlog.UseStdLogger(mlog.InfoLevel)
		mlog.Fatalf("install logger: %v", err)
	}
	defer mlog.Sync()
	if conf.IsDebug {
		mlog.Debugf("config:\n%s", conf.JsonFormat())
	}
	if *parallel > 0 {
		conf.BenchParallel = *parallel
	}

	rep, err := bench.RunAll(bench.Matrix(&conf.BenchConfig), conf.BenchParallel)
	if err != nil {
		mlog.Fatalf("bench: %v", err)
	}
	rep.Log()

	switch *jsonOut {
	case "":
	case "-":
		err = rep.WriteJSON(os.Stdout)
	default:
		var f *os.File
		if f, err = os.Create(*jsonOut); err == nil {
			err = rep.WriteJSON(f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}
	}
	if err != nil {
		mlog.Fatalf("write report: %v", err)
	}
}
