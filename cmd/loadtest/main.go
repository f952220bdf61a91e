package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
)

const (
	userIDHeader      = "x-user-id"
	idempotencyHeader = "idempotency-key"
)

type loadMode string

const (
	modeBrowse         loadMode = "browse"
	modeCheckout       loadMode = "checkout"
	modeCheckoutVerify loadMode = "checkout-verify"
)

// storefrontCaller вызывает unary-метод витрины по полному имени.
type storefrontCaller interface {
	Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	productID   string
	quantity    int
	userTag     string
	outputPath  string
}

// parseConfig разбирает аргументы командной строки. Без -duration прогон ограничен -total,
// с -duration значение -total учитывается только если задано явно.
func parseConfig(args []string) (config, error) {
	var (
		cfg  config
		mode string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "storefront gRPC address")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for a fixed time instead of a fixed count")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "parallel workers")
	fs.IntVar(&cfg.connections, "connections", 20, "gRPC client connections shared by workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&mode, "mode", string(modeCheckout), "browse | checkout | checkout-verify")
	fs.StringVar(&cfg.productID, "product", "prod-1", "product added to every cart")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity of the cart line")
	fs.StringVar(&cfg.userTag, "user-tag", "load", "prefix of generated user ids")
	fs.StringVar(&cfg.outputPath, "output", "", "write the JSON report to this file")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) { cfg.totalSet = cfg.totalSet || f.Name == "total" })

	var err error
	if cfg.mode, err = parseMode(mode); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	rules := []struct {
		broken bool
		msg    string
	}{
		{c.duration < 0, "duration must be >= 0"},
		{c.duration == 0 && c.total <= 0, "total must be > 0 when duration is not set"},
		{c.duration > 0 && c.totalSet && c.total <= 0, "total must be > 0 when set together with duration"},
		{c.concurrency <= 0, "concurrency must be > 0"},
		{c.connections <= 0, "connections must be > 0"},
		{c.timeout <= 0, "timeout must be > 0"},
		{c.quantity <= 0, "quantity must be > 0"},
		{strings.TrimSpace(c.productID) == "", "product is required"},
		{strings.TrimSpace(c.userTag) == "", "user-tag is required"},
	}
	for _, rule := range rules {
		if rule.broken {
			return errors.New(rule.msg)
		}
	}
	return nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeBrowse, modeCheckout, modeCheckoutVerify:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run выполняет прогон и возвращает код выхода: 2 для ошибки конфигурации,
// 1 если хоть один сценарий завершился ошибкой.
func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := parseConfig(args)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	clients, closeAll, err := dial(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to create grpc client connection: %v\n", err)
		return 1
	}
	defer closeAll()

	result := execute(cfg, clients)

	printReport(stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(stderr, "failed to write report: %v\n", err)
			return 1
		}
	}
	if result.FailedScenarios > 0 {
		return 1
	}
	return 0
}

func dial(cfg config) ([]storefrontCaller, func(), error) {
	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	closeAll := func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}

	clients := make([]storefrontCaller, 0, cfg.connections)
	for range cfg.connections {
		conn, err := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewStorefrontClient(conn))
	}
	return clients, closeAll, nil
}

// execute раздаёт сценарии cfg.concurrency воркерам; воркеры делят соединения по кругу.
func execute(cfg config, clients []storefrontCaller) report {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for i := range cfg.concurrency {
		wg.Add(1)
		go func(client storefrontCaller) {
			defer wg.Done()
			for id := range jobs {
				_ = runScenario(client, cfg, id, runID, col)
			}
		}(clients[i%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt))
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}

		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(
	client storefrontCaller,
	cfg config,
	index int,
	runID string,
	col *collector,
) error {
	scenarioStart := time.Now()
	scenarioCode := codes.OK
	defer func() {
		col.record(scenarioMethod, time.Since(scenarioStart), scenarioCode)
	}()

	userID := fmt.Sprintf("%s-%s-%d", cfg.userTag, runID, index)

	if cfg.mode == modeBrowse {
		if _, err := call(client, cfg.timeout, grpcsvc.MethodListProducts, nil, userID, "", col); err != nil {
			scenarioCode = grpcCode(err)
			return err
		}
		if _, err := call(client, cfg.timeout, grpcsvc.MethodGetProduct, map[string]any{"id": cfg.productID}, userID, "", col); err != nil {
			scenarioCode = grpcCode(err)
			return err
		}
		return nil
	}

	addItem := map[string]any{"productId": cfg.productID, "quantity": cfg.quantity}
	if _, err := call(client, cfg.timeout, grpcsvc.MethodAddCartItem, addItem, userID, "", col); err != nil {
		scenarioCode = grpcCode(err)
		return err
	}

	checkoutReq := map[string]any{
		"customerName":  "Load Test " + strconv.Itoa(index),
		"customerEmail": userID + "@load.test",
	}
	checkoutKey := fmt.Sprintf("lt-checkout-%s-%d", runID, index)
	resp, err := call(client, cfg.timeout, grpcsvc.MethodCheckout, checkoutReq, userID, checkoutKey, col)
	if err != nil {
		scenarioCode = grpcCode(err)
		return err
	}

	orderNumber := orderNumberOf(resp)
	if orderNumber == "" {
		scenarioCode = codes.Internal
		return errors.New("checkout response returned empty order number")
	}

	if cfg.mode == modeCheckoutVerify {
		if _, err := call(client, cfg.timeout, grpcsvc.MethodGetOrder, map[string]any{"orderNumber": orderNumber}, userID, "", col); err != nil {
			scenarioCode = grpcCode(err)
			return err
		}
	}

	return nil
}

// call выполняет один RPC с метаданными пользователя и, если задан, ключом идемпотентности.
func call(
	client storefrontCaller,
	timeout time.Duration,
	method string,
	fields map[string]any,
	userID, idempotencyKey string,
	col *collector,
) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "build request: %v", err)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pairs := []string{userIDHeader, userID}
	if idempotencyKey != "" {
		pairs = append(pairs, idempotencyHeader, idempotencyKey)
	}
	ctx = metadata.AppendToOutgoingContext(ctx, pairs...)

	resp, err := client.Call(ctx, method, in)
	col.record(methodLabel(method), time.Since(start), grpcCode(err))
	return resp, err
}

// methodLabel укорачивает полное имя метода до последнего сегмента.
func methodLabel(method string) string {
	if idx := strings.LastIndex(method, "/"); idx >= 0 {
		return method[idx+1:]
	}
	return method
}

func orderNumberOf(resp *structpb.Struct) string {
	order := resp.GetFields()["data"].GetStructValue().GetFields()["order"].GetStructValue()
	return order.GetFields()["orderNumber"].GetStringValue()
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
