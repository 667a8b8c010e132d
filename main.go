package main

import (
	"encoding/base64"
	"errors"
	"flag"
	"os"

	"github.com/sirupsen/logrus"
	easy "github.com/t-tomalak/logrus-easy-formatter"
	"github.com/tsinghua-fib-lab/lanesim/task"
	"github.com/tsinghua-fib-lab/lanesim/utils/config"
	"gopkg.in/yaml.v2"
)

var (
	// 场景配置文件路径
	configPath = flag.String("config", "", "scenario config file path")
	// 场景配置Base64编码后的数据
	configData = flag.String("config-data", "", "scenario config base64 encoded data")
	// 运行汇总输出路径，为空时只输出日志
	outputPath = flag.String("output", "", "write run summary as YAML to this path")

	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "lanesim")
)

// readScenario 从文件或Base64数据读取场景配置
func readScenario() (config.Config, error) {
	var data []byte
	var err error
	switch {
	case *configPath != "":
		data, err = os.ReadFile(*configPath)
	case *configData != "":
		data, err = base64.StdEncoding.DecodeString(*configData)
	default:
		err = errors.New("-config or -config-data must be specified")
	}
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(data)
}

func writeSummary(path string, s task.Summary) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}

	c, err := readScenario()
	if err != nil {
		log.Panicf("config load err: %v", err)
	}
	log.Infof("%+v", c.Control)

	t, err := task.NewContext(c)
	if err != nil {
		log.Panicf("init err: %v", err)
	}
	s, err := t.Run()
	if err != nil {
		log.Panicf("run err: %v", err)
	}
	if *outputPath != "" {
		if err := writeSummary(*outputPath, s); err != nil {
			log.Panicf("write summary err: %v", err)
		}
		log.Infof("summary written to %s", *outputPath)
	}
}
