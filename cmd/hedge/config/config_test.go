package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/hedge/cmd/hedge/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "hedge-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .hedge dir so the manager picks it up
		err = os.MkdirAll(filepath.Join(tmpDir, ".hedge"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	execute := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(execute("set", "agent.target", "http://agent:9000")).To(Succeed())

			_, err := os.Stat(filepath.Join(tmpDir, ".hedge", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(out.String()).To(ContainSubstring("http://agent:9000"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("set", "invalid_key", "value")).To(HaveOccurred())
		})

		It("requires exactly two arguments", func() {
			Expect(execute("set", "agent.target")).To(HaveOccurred())
		})

		It("rejects zero arguments", func() {
			Expect(execute("set")).To(HaveOccurred())
		})

		It("rejects invalid uint values", func() {
			Expect(execute("set", "stream.workers", "not-a-number")).To(HaveOccurred())
		})

		It("rejects invalid durations", func() {
			Expect(execute("set", "agent.timeout", "soon")).To(HaveOccurred())
		})

		It("rejects unknown log levels", func() {
			Expect(execute("set", "log.level", "loud")).To(HaveOccurred())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(execute("set", "stream.workers", "7")).To(Succeed())

			out.Reset()
			Expect(execute("get", "stream.workers")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("7"))
		})

		It("shows the default for an unset key", func() {
			Expect(execute("get", "agent.path")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("/api/chat"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("get", "invalid_key")).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			Expect(execute("get")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			Expect(execute("list")).To(Succeed())

			output := out.String()
			Expect(output).To(ContainSubstring("agent.target"))
			Expect(output).To(ContainSubstring("log.level"))
			Expect(output).To(ContainSubstring(`"http://localhost:8000"`))
		})

		It("shows values from the config file", func() {
			Expect(execute("set", "eventstream.kafka_topic", "trades")).To(Succeed())

			out.Reset()
			Expect(execute("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(`"trades"`))
			Expect(out.String()).To(ContainSubstring("config.toml"))
		})

		It("rejects any arguments", func() {
			Expect(execute("list", "extra")).To(HaveOccurred())
		})
	})
})
