package servecmder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/hedge/api"
	"github.com/papercomputeco/hedge/pkg/config"
	"github.com/papercomputeco/hedge/pkg/eventstream/nop"
	"github.com/papercomputeco/hedge/pkg/logger"
	"github.com/papercomputeco/hedge/pkg/storage/inmemory"
	"github.com/papercomputeco/hedge/pkg/storage/sqlite"
	testutils "github.com/papercomputeco/hedge/pkg/utils/test"
	"github.com/papercomputeco/hedge/proxy"
)

var _ = Describe("serve", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "hedge-serve-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("rejects an unusable agent timeout before starting", func() {
		cmd := NewServeCmd()
		cmd.PersistentFlags().String("config-dir", tmpDir, "")
		cmd.PersistentFlags().Bool("debug", false, "")
		cmd.SetArgs([]string{"--agent-timeout", "soon"})
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)

		err := cmd.Execute()
		Expect(err).To(MatchError(ContainSubstring("invalid agent timeout")))
	})

	Describe("storage selection", func() {
		var cmder *serveCommander

		BeforeEach(func() {
			cmder = &serveCommander{cfg: config.NewDefaultConfig(), logger: logger.Nop()}
		})

		It("defaults to in-memory storage", func() {
			driver, err := cmder.newDriver(context.Background())
			Expect(err).NotTo(HaveOccurred())
			defer driver.Close()
			Expect(driver).To(BeAssignableToTypeOf(&inmemory.Driver{}))
		})

		It("uses SQLite when a path is configured", func() {
			cmder.cfg.Storage.SQLitePath = filepath.Join(tmpDir, "hedge.sqlite")

			driver, err := cmder.newDriver(context.Background())
			Expect(err).NotTo(HaveOccurred())
			defer driver.Close()
			Expect(driver).To(BeAssignableToTypeOf(&sqlite.Driver{}))
		})

		It("publishes nowhere without brokers", func() {
			publisher, err := cmder.newPublisher()
			Expect(err).NotTo(HaveOccurred())
			Expect(publisher).To(BeAssignableToTypeOf(&nop.Publisher{}))
		})
	})

	It("also writes JSON logs to --log-file", func() {
		logPath := filepath.Join(tmpDir, "serve.log")
		cfg := config.NewDefaultConfig()
		cfg.Proxy.Listen = "127.0.0.1:0"
		cfg.API.Listen = "127.0.0.1:0"

		cmder := &serveCommander{cfg: cfg, jsonLogs: true, logFile: logPath}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		Expect(cmder.run(ctx)).To(Succeed())

		data, err := os.ReadFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"msg":"using in-memory storage"`))
		Expect(string(data)).To(ContainSubstring(`"msg":"received signal, shutting down"`))
	})

	It("relays, persists, serves the transcript, and shuts down on cancel", func() {
		agent := testutils.NewFakeAgent(
			"event: hedge_conversation_created\ndata: {\"hedgeConversationId\":\"conv-1\"}\n\n",
			"data: TEXT:Hello\n\n",
			"data: DONE\n\n",
		)
		upstream := httptest.NewServer(agent)
		defer upstream.Close()

		driver := inmemory.NewDriver()
		cmder := &serveCommander{
			cfg:    config.NewDefaultConfig(),
			level:  new(slog.LevelVar),
			logger: logger.Nop(),
		}

		p, err := proxy.New(proxy.Config{AgentURL: upstream.URL}, driver, nop.NewPublisher(), cmder.logger)
		Expect(err).NotTo(HaveOccurred())
		apiServer := api.NewServer(api.Config{}, driver, cmder.logger)

		proxyListener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		apiListener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- cmder.serve(ctx, p, apiServer, proxyListener, apiListener)
		}()

		relayURL := "http://" + proxyListener.Addr().String() + "/v1/chat"
		Eventually(func() error {
			resp, err := http.Post(relayURL, "application/json", strings.NewReader(`{"message":"hi"}`))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, err = io.Copy(io.Discard, resp.Body)
			return err
		}, 5*time.Second).Should(Succeed())

		transcriptURL := "http://" + apiListener.Addr().String() + "/v1/conversations/conv-1/messages"
		Eventually(func() int {
			resp, err := http.Get(transcriptURL)
			if err != nil {
				return 0
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return 0
			}
			var body api.TranscriptResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return 0
			}
			return len(body.Messages)
		}, 5*time.Second).Should(Equal(2))

		cancel()
		Eventually(done, 5*time.Second).Should(Receive(BeNil()))
	})
})
