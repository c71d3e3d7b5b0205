package auth_test

import (
	"context"
	"errors"
	"net/http"

	fbauth "firebase.google.com/go/v4/auth"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dispatch-ext/backend/internal/auth"
)

var _ = Describe("FirebaseVerifier", func() {
	var verifier *auth.FirebaseVerifier

	BeforeEach(func() {
		verifier = auth.NewFirebaseVerifierWithClient(&mockIDTokenVerifier{
			verifyFn: func(_ context.Context, idToken string) (*fbauth.Token, error) {
				if idToken != "good" {
					return nil, errors.New("invalid token")
				}
				return &fbauth.Token{
					UID:     "fb-1",
					Expires: 1893456000,
					Claims: map[string]interface{}{
						"email":          "ada@example.com",
						"name":           "Ada",
						"email_verified": true,
					},
				}, nil
			},
		})
	})

	It("maps token claims onto the session", func() {
		h := http.Header{}
		h.Set("Authorization", "Bearer good")
		s, err := verifier.GetSession(context.Background(), h)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.UserID).To(Equal("fb-1"))
		Expect(s.Email).To(Equal("ada@example.com"))
		Expect(s.Name).To(Equal("Ada"))
		Expect(s.EmailVerified).To(BeTrue())
		Expect(s.ExpiresAt.Unix()).To(Equal(int64(1893456000)))
	})

	It("treats a rejected token as no session", func() {
		h := http.Header{}
		h.Set("Authorization", "Bearer bad")
		s, err := verifier.GetSession(context.Background(), h)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(BeNil())
	})
})
