package main

import (
	"github.com/spf13/pflag"
)

type FlagType int
type FlagMap map[FlagType]string

const (
	listenAddress FlagType = iota
	servicePort

	configPath
	opaPath

	runPipeline
	agencyName
	runEvery
)

func parseFlags(args []string) (FlagMap, error) {
	flags := FlagMap{}

	fs := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)

	listen := fs.String("listen", "", "address to listen on, all interfaces when empty")
	port := fs.String("port", "8080", "port for the control api")
	cfg := fs.StringP("config", "c", "/opt/transit/config/transit-publisher.yaml", "path to the yaml configuration")
	policies := fs.String("policies", "/opt/transit/config/authz.rego", "path to the rego policies for the control api")
	run := fs.StringP("run", "r", "", "run a single pipeline (broker, places or gtfs) and exit")
	agency := fs.StringP("agency", "a", "", "agency name for the broker pipeline")
	every := fs.String("every", "", "when serving, also run the pipeline given by --run at this interval (e.g. 6h)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	flags[listenAddress] = *listen
	flags[servicePort] = *port
	flags[configPath] = *cfg
	flags[opaPath] = *policies
	flags[runPipeline] = *run
	flags[agencyName] = *agency
	flags[runEvery] = *every

	return flags, nil
}
