// Command httpc fetches one or more URLs, each over its own connection.
//
//	httpc [-config httpc.yaml] [-method GET] [-data body] [-follow get_head] [-v] URL...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nczempin/httpc-conn/client"
	"github.com/nczempin/httpc-conn/engine"
)

type headerFlags []client.Header

func (h *headerFlags) String() string {
	parts := make([]string, len(*h))
	for i, hdr := range *h {
		parts[i] = hdr.Name + ": " + hdr.Value
	}
	return strings.Join(parts, ", ")
}

func (h *headerFlags) Set(v string) error {
	name, value, ok := strings.Cut(v, ":")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("header %q is not in Name: Value form", v)
	}
	*h = append(*h, client.Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	return nil
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML configuration file")
		method     = flag.String("method", "GET", "request method")
		data       = flag.String("data", "", "request body")
		follow     = flag.String("follow", "", "redirect policy: get_head, none or all")
		transport  = flag.String("transport", "", "transport: uring, uring-v2, unix or net")
		timeout    = flag.Duration("timeout", 0, "per-operation timeout")
		parallel   = flag.Int("parallel", 4, "maximum concurrent connections")
		showHead   = flag.Bool("i", false, "print response headers")
		verbose    = flag.Bool("v", false, "debug logging")
		headers    headerFlags
	)
	flag.Var(&headers, "H", "request header, repeatable")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	client.SetLogger(logger)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := client.Configuration{}
	if *configPath != "" {
		loaded, err := client.LoadConfiguration(*configPath)
		if err != nil {
			logger.WithError(err).Fatal("unable to load configuration")
		}
		cfg = loaded
	}
	if *follow != "" {
		if err := cfg.FollowRedirectsPolicy.UnmarshalText([]byte(*follow)); err != nil {
			logger.WithError(err).Fatal("invalid -follow")
		}
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}

	m, ok := engine.ParseMethod(strings.ToUpper(*method))
	if !ok {
		logger.WithField("method", *method).Fatal("unsupported -method")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.NewHttpClient(cfg, nil)
	results := make([]*client.HttpResponse, flag.NArg())

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for i, url := range flag.Args() {
		i, url := i, url
		g.Go(func() error {
			start := time.Now()
			resp, err := c.Do(ctx, &client.HttpRequest{
				Method:  m,
				URL:     url,
				Headers: headers,
				Body:    []byte(*data),
			})
			if err != nil {
				return fmt.Errorf("%s: %w", url, err)
			}
			logger.WithFields(logrus.Fields{
				"url":     url,
				"status":  resp.StatusCode,
				"bytes":   len(resp.Body),
				"elapsed": time.Since(start),
			}).Debug("fetched")
			results[i] = resp
			return nil
		})
	}
	waitErr := g.Wait()

	for i, resp := range results {
		if resp == nil {
			continue
		}
		if flag.NArg() > 1 {
			fmt.Printf("==> %s <==\n", flag.Arg(i))
		}
		if *showHead {
			printHeaders(resp)
		}
		os.Stdout.Write(resp.Body)
	}

	if waitErr != nil {
		logger.WithError(waitErr).Fatal("request failed")
	}
}

func printHeaders(resp *client.HttpResponse) {
	fmt.Printf("HTTP/1.1 %d\n", resp.StatusCode)
	names := make([]string, 0, len(resp.Headers))
	for name := range resp.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s: %s\n", name, resp.Headers[name])
	}
	fmt.Println()
}
