package initcmder_test

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/switchboard/cmd/switchboard/init"
	"github.com/papercomputeco/switchboard/pkg/config"
)

func loadConfig(dir string) *config.Config {
	data, err := os.ReadFile(filepath.Join(dir, ".switchboard", "config.toml"))
	Expect(err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	Expect(toml.Unmarshal(data, cfg)).To(Succeed())
	return cfg
}

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "switchboard-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	It("creates a .switchboard directory with a default config", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{})
		Expect(cmd.Execute()).To(Succeed())

		Expect(filepath.Join(tmpDir, ".switchboard")).To(BeADirectory())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Proxy.Listen).To(Equal(":8080"))
		Expect(cfg.Storage.Driver).To(Equal(config.StorageSQLite))
	})

	It("writes the preset family and key reference", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{"--preset", "openai"})
		Expect(cmd.Execute()).To(Succeed())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Routing.DefaultFamily).To(Equal("openai"))
		Expect(cfg.Providers.OpenAI.APIKey).To(Equal("${OPENAI_API_KEY}"))
	})

	It("rejects unknown presets", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{"--preset", "ollama"})
		Expect(cmd.Execute()).To(MatchError(ContainSubstring("unknown preset")))
	})

	It("does not overwrite an existing config", func() {
		dir := filepath.Join(tmpDir, ".switchboard")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[proxy]\nlisten = \":9999\"\n"), 0o600)).To(Succeed())

		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{"--preset", "anthropic"})
		Expect(cmd.Execute()).To(Succeed())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Proxy.Listen).To(Equal(":9999"))
		Expect(cfg.Routing.DefaultFamily).To(BeEmpty())
	})
})
