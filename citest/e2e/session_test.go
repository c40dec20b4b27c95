package e2e_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/reasoner/pkg/types"
)

var _ = Describe("Session Workflows", func() {
	Describe("Basic Session Lifecycle", func() {
		It("should create a new session", func() {
			session, err := client.CreateSession(ctx, "Test Session")
			Expect(err).NotTo(HaveOccurred())
			defer client.DeleteSession(ctx, session.ID)

			Expect(session.ID).NotTo(BeEmpty())
			Expect(session.Title).To(Equal("Test Session"))
			Expect(session.History).To(BeEmpty())
		})

		It("should name untitled sessions", func() {
			session, err := client.CreateSession(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			defer client.DeleteSession(ctx, session.ID)

			Expect(session.Title).To(Equal("New Operation"))
		})

		It("should retrieve session by ID", func() {
			session, err := client.CreateSession(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			defer client.DeleteSession(ctx, session.ID)

			retrieved, err := client.GetSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.ID).To(Equal(session.ID))
		})

		It("should list sessions", func() {
			session, err := client.CreateSession(ctx, "Listed")
			Expect(err).NotTo(HaveOccurred())
			defer client.DeleteSession(ctx, session.ID)

			sessions, err := client.ListSessions(ctx)
			Expect(err).NotTo(HaveOccurred())

			var ids []string
			for _, s := range sessions {
				ids = append(ids, s.ID)
			}
			Expect(ids).To(ContainElement(session.ID))
		})

		It("should rename a session", func() {
			session, err := client.CreateSession(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			defer client.DeleteSession(ctx, session.ID)

			resp, err := client.Patch(ctx, "/session/"+session.ID, map[string]string{"title": "Renamed"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			retrieved, err := client.GetSession(ctx, session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved.Title).To(Equal("Renamed"))
		})

		It("should reject an empty title", func() {
			session, err := client.CreateSession(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			defer client.DeleteSession(ctx, session.ID)

			resp, err := client.Patch(ctx, "/session/"+session.ID, map[string]string{"title": "  "})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should delete a session", func() {
			session, err := client.CreateSession(ctx, "")
			Expect(err).NotTo(HaveOccurred())

			Expect(client.DeleteSession(ctx, session.ID)).To(Succeed())

			resp, err := client.Get(ctx, "/session/"+session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Session Status", func() {
		It("should report an idle session", func() {
			session, err := client.CreateSession(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			defer client.DeleteSession(ctx, session.ID)

			resp, err := client.Get(ctx, "/session/status?sessionID="+session.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var status struct {
				SessionID string `json:"sessionID"`
				Status    string `json:"status"`
			}
			Expect(resp.JSON(&status)).To(Succeed())
			Expect(status.SessionID).To(Equal(session.ID))
			Expect(status.Status).To(Equal("idle"))
		})

		It("should refuse to abort an idle session", func() {
			session, err := client.CreateSession(ctx, "")
			Expect(err).NotTo(HaveOccurred())
			defer client.DeleteSession(ctx, session.ID)

			resp, err := client.Post(ctx, "/session/"+session.ID+"/abort", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("Flat Client Routes", func() {
		It("should create, list and delete sessions", func() {
			resp, err := client.Post(ctx, "/create_session", map[string]string{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var created struct {
				ID string `json:"id"`
			}
			Expect(resp.JSON(&created)).To(Succeed())
			Expect(created.ID).NotTo(BeEmpty())

			resp, err = client.Get(ctx, "/list_sessions")
			Expect(err).NotTo(HaveOccurred())
			var listed []map[string]string
			Expect(resp.JSON(&listed)).To(Succeed())
			Expect(listed).To(ContainElement(HaveKeyWithValue("id", created.ID)))

			resp, err = client.Post(ctx, "/delete_session", map[string]string{"id": created.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should return an empty history for an unknown session", func() {
			resp, err := client.Post(ctx, "/get_history", map[string]string{"id": "missing"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				History []types.Turn `json:"history"`
			}
			Expect(resp.JSON(&body)).To(Succeed())
			Expect(body.History).To(BeEmpty())
		})
	})
})
