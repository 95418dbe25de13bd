// Command secbioauth runs privacy-preserving verification attempts on HELR
// datasets and prepares their quantization bins.
//
//	secbioauth verify --data data -d PUT -d BMDB --index 3 --backend fhe
//	secbioauth bins --data data -d PUT --bins 16
package main

import (
	"os"

	flags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

// GlobalOptions are shared by all commands.
type GlobalOptions struct {
	Data     string   `long:"data" default:"data" description:"dataset folder, or object prefix for remote storage"`
	Datasets []string `short:"d" long:"dataset" description:"dataset preset (PUT, BMDB, FRGC) or name from --config; repeatable" default:"PUT"`
	Config   string   `long:"config" description:"YAML file of dataset configurations"`

	LogLevel  string `long:"log-level" default:"info" description:"log level"`
	LogFormat string `long:"log-format" default:"text" choice:"text" choice:"json" description:"log format"`

	Storage StorageOptions `group:"Storage" namespace:"storage"`
}

var (
	globals GlobalOptions
	parser  = flags.NewParser(&globals, flags.Default)
)

func init() {
	must := func(_ *flags.Command, err error) {
		if err != nil {
			panic(err)
		}
	}
	must(parser.AddCommand("verify", "Run verification attempts",
		"Synthesizes a probe from a template of each dataset and verifies it through the selected backend.", &verifyCommand{}))
	must(parser.AddCommand("bins", "Derive quantization bins",
		"Computes equal-frequency quantization bins from the feature file of each dataset.", &binsCommand{}))
}

func newLogger(opts GlobalOptions) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if opts.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger, nil
}

func main() {
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
