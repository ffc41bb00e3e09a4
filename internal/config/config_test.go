package config

import (
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	Describe("DefaultConfig", func() {
		It("should return spec-mandated defaults", func() {
			cfg := DefaultConfig()

			Expect(cfg.MaxReferenceDuplicateDepth).To(Equal(2))
			Expect(cfg.MaxRetryCount).To(Equal(3))
			Expect(cfg.SinglyProjectedAnnotationKeys).To(ConsistOf("inclusion:destiny"))
			Expect(cfg.FeatureEnabled("deduplication")).To(BeTrue())
		})
	})

	Describe("LoadFromEnv", func() {
		var cfg *Config

		BeforeEach(func() {
			cfg = DefaultConfig()
		})

		AfterEach(func() {
			os.Unsetenv("DB_HOST")
			os.Unsetenv("MAX_RETRY_COUNT")
			os.Unsetenv("TRUSTED_UNIQUE_IDENTIFIER_TYPES")
		})

		It("should override from environment", func() {
			os.Setenv("DB_HOST", "db.internal")
			os.Setenv("MAX_RETRY_COUNT", "5")
			os.Setenv("TRUSTED_UNIQUE_IDENTIFIER_TYPES", "doi,pmid")

			cfg.LoadFromEnv()

			Expect(cfg.Database.Host).To(Equal("db.internal"))
			Expect(cfg.MaxRetryCount).To(Equal(5))
			Expect(cfg.TrustedUniqueIdentifierTypes).To(Equal([]string{"doi", "pmid"}))
		})

		It("should keep default on invalid integer", func() {
			os.Setenv("MAX_RETRY_COUNT", "not-a-number")
			defer os.Unsetenv("MAX_RETRY_COUNT")

			original := cfg.MaxRetryCount
			cfg.LoadFromEnv()

			Expect(cfg.MaxRetryCount).To(Equal(original))
		})
	})

	Describe("Validate", func() {
		var cfg *Config

		BeforeEach(func() {
			cfg = DefaultConfig()
		})

		It("should pass for defaults", func() {
			Expect(cfg.Validate()).NotTo(HaveOccurred())
		})

		It("should reject empty database host", func() {
			cfg.Database.Host = ""
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("database.host")))
		})

		It("should reject out-of-range port", func() {
			cfg.Database.Port = 0
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("database.port")))
		})

		It("should reject a duplicate depth below 1", func() {
			cfg.MaxReferenceDuplicateDepth = 0
			Expect(cfg.Validate()).To(MatchError(ContainSubstring("max_reference_duplicate_depth")))
		})
	})

	Describe("IsTrustedIdentifierType", func() {
		It("should match configured types only", func() {
			cfg := DefaultConfig()
			Expect(cfg.IsTrustedIdentifierType("doi")).To(BeTrue())
			Expect(cfg.IsTrustedIdentifierType("other")).To(BeFalse())
		})
	})

	Describe("chunk size overrides", func() {
		It("should fall back to the default when unset", func() {
			cfg := DefaultConfig()
			Expect(cfg.ESPercolationChunkSize("anything")).To(Equal(cfg.DefaultESPercolationChunkSize))
		})

		It("should prefer a per-operation override", func() {
			cfg := DefaultConfig()
			cfg.ESPercolationChunkSizeOverrides["enhancement_result"] = 25
			Expect(cfg.ESPercolationChunkSize("enhancement_result")).To(Equal(25))
		})
	})
})
