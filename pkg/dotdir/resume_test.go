package dotdir_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/hedge/pkg/dotdir"
)

var _ = Describe("dotdir.Manager resume state", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-resume-*")
		Expect(err).NotTo(HaveOccurred())
		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns nil when no resume file exists", func() {
		state, err := m.LoadResumeState(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})

	It("saves and loads the conversation id", func() {
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		Expect(m.SaveResumeState(&dotdir.ResumeState{ConversationID: "abc123", UpdatedAt: at}, tmpDir)).To(Succeed())

		state, err := m.LoadResumeState(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.ConversationID).To(Equal("abc123"))
		Expect(state.UpdatedAt.Equal(at)).To(BeTrue())
	})

	It("returns error for invalid JSON", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "chat.json"), []byte("not json"), 0o600)).To(Succeed())

		state, err := m.LoadResumeState(tmpDir)
		Expect(err).To(HaveOccurred())
		Expect(state).To(BeNil())
	})

	It("rejects nil and id-less state", func() {
		Expect(m.SaveResumeState(nil, tmpDir)).NotTo(Succeed())
		Expect(m.SaveResumeState(&dotdir.ResumeState{}, tmpDir)).NotTo(Succeed())
	})

	It("clears the state and tolerates clearing twice", func() {
		Expect(m.SaveResumeState(&dotdir.ResumeState{ConversationID: "abc123"}, tmpDir)).To(Succeed())
		Expect(m.ClearResumeState(tmpDir)).To(Succeed())
		Expect(m.ClearResumeState(tmpDir)).To(Succeed())

		state, err := m.LoadResumeState(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(state).To(BeNil())
	})
})
