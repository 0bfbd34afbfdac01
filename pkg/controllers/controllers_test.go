/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controllers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/kau-subtrack/subtrack-backend/pkg/controllers"
	"github.com/kau-subtrack/subtrack-backend/pkg/dispatch"
	"github.com/kau-subtrack/subtrack-backend/pkg/fake"
	"github.com/kau-subtrack/subtrack-backend/pkg/repository"
)

var (
	jwtSecret = []byte("test-secret")
	kst       = time.FixedZone("KST", 9*3600)
)

func signedToken(driverID int64, expiresAt time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": driverID,
		"exp":    expiresAt.Unix(),
	})
	signed, err := token.SignedString(jwtSecret)
	Expect(err).ToNot(HaveOccurred())
	return signed
}

type harness struct {
	store  *fake.Store
	server *httptest.Server
}

func newHarness() *harness {
	store := fake.NewStore()
	clk := clocktesting.NewFakeClock(time.Date(2026, 8, 24, 10, 0, 0, 0, kst))
	core := dispatch.NewCore(store, fake.NewGeocoder(), fake.NewRouter(), fake.NewOptimizer(), fake.NewPublisher(), kst).
		WithClock(clk)
	controller := controllers.New(core, nil, nil, jwtSecret)
	return &harness{store: store, server: httptest.NewServer(controller.Router())}
}

func (h *harness) request(method, path, token string, payload any) (int, map[string]any) {
	var reqBody bytes.Buffer
	if payload != nil {
		Expect(json.NewEncoder(&reqBody).Encode(payload)).To(Succeed())
	}
	req, err := http.NewRequest(method, h.server.URL+path, &reqBody)
	Expect(err).ToNot(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	Expect(err).ToNot(HaveOccurred())
	defer resp.Body.Close()
	var body map[string]any
	Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return resp.StatusCode, body
}

var _ = Describe("Authentication", func() {
	var h *harness
	BeforeEach(func() {
		h = newHarness()
		DeferCleanup(h.server.Close)
	})

	It("should reject a request without a token", func() {
		status, body := h.request(http.MethodGet, "/api/pickup/next", "", nil)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body["code"]).To(Equal("UNAUTHENTICATED"))
	})

	It("should reject a non-bearer authorization header", func() {
		req, err := http.NewRequest(http.MethodGet, h.server.URL+"/api/pickup/next", nil)
		Expect(err).ToNot(HaveOccurred())
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		resp, err := http.DefaultClient.Do(req)
		Expect(err).ToNot(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("should reject an expired token", func() {
		token := signedToken(1, time.Now().Add(-time.Hour))
		status, body := h.request(http.MethodGet, "/api/pickup/next", token, nil)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(body["error"]).To(ContainSubstring("token expired"))
	})

	It("should reject a token signed with the wrong secret", func() {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"userId": 1,
			"exp":    time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("other-secret"))
		Expect(err).ToNot(HaveOccurred())
		status, _ := h.request(http.MethodGet, "/api/pickup/next", signed, nil)
		Expect(status).To(Equal(http.StatusUnauthorized))
	})

	It("should reject a token without a driver id", func() {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString(jwtSecret)
		Expect(err).ToNot(HaveOccurred())
		status, _ := h.request(http.MethodGet, "/api/pickup/next", signed, nil)
		Expect(status).To(Equal(http.StatusUnauthorized))
	})

	It("should admit a valid token", func() {
		token := signedToken(1, time.Now().Add(time.Hour))
		status, body := h.request(http.MethodGet, "/api/pickup/next", token, nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["status"]).To(Equal(dispatch.StatusWaitingForOrders))
	})
})

var _ = Describe("Pickup endpoints", func() {
	var h *harness
	BeforeEach(func() {
		h = newHarness()
		DeferCleanup(h.server.Close)
	})

	It("should require parcelId on the webhook", func() {
		status, body := h.request(http.MethodPost, "/api/pickup/webhook", "", map[string]any{})
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body["code"]).To(Equal("VALIDATION"))
	})

	It("should ingest a parcel announcement", func() {
		h.store.Add(repository.Parcel{
			ID:            777,
			RecipientAddr: "서울시 강남구 테헤란로 123",
			Status:        repository.StatusPickupPending,
			CreatedAt:     time.Now(),
		})
		status, body := h.request(http.MethodPost, "/api/pickup/webhook", "", map[string]any{"parcelId": 777})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["status"]).To(Equal(dispatch.StatusSuccess))
		Expect(body["driverId"]).To(Equal(5.0))
		Expect(body["district"]).To(Equal("강남구"))
	})

	It("should answer 404 for an unknown parcel", func() {
		status, body := h.request(http.MethodPost, "/api/pickup/webhook", "", map[string]any{"parcelId": 1})
		Expect(status).To(Equal(http.StatusNotFound))
		Expect(body["code"]).To(Equal("NOT_FOUND"))
	})

	It("should refuse completion by the wrong driver", func() {
		h.store.Add(repository.Parcel{
			ID:             777,
			RecipientAddr:  "서울시 강남구 테헤란로 123",
			Status:         repository.StatusPickupPending,
			PickupDriverID: lo.ToPtr(int64(5)),
			CreatedAt:      time.Now(),
		})
		token := signedToken(1, time.Now().Add(time.Hour))
		status, body := h.request(http.MethodPost, "/api/pickup/complete", token, map[string]any{"parcelId": 777})
		Expect(status).To(Equal(http.StatusForbidden))
		Expect(body["code"]).To(Equal("FORBIDDEN"))
	})

	It("should gate hub arrival on outstanding pickups", func() {
		h.store.Add(repository.Parcel{
			ID:             777,
			RecipientAddr:  "서울시 강남구 테헤란로 123",
			Status:         repository.StatusPickupPending,
			PickupDriverID: lo.ToPtr(int64(1)),
			CreatedAt:      time.Now(),
		})
		token := signedToken(1, time.Now().Add(time.Hour))
		status, body := h.request(http.MethodPost, "/api/pickup/hub-arrived", token, nil)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(body["remaining_pickups"]).To(Equal(1.0))
	})

	It("should report health on the status endpoint", func() {
		status, body := h.request(http.MethodGet, "/api/pickup/status", "", nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["status"]).To(Equal("healthy"))
	})
})

var _ = Describe("Delivery endpoints", func() {
	var h *harness
	BeforeEach(func() {
		h = newHarness()
		DeferCleanup(h.server.Close)
	})

	It("should accept the legacy deliveryId key on completion", func() {
		h.store.Add(repository.Parcel{
			ID:               300,
			RecipientAddr:    "서울시 송파구 올림픽로 300",
			Status:           repository.StatusDeliveryPending,
			DeliveryDriverID: lo.ToPtr(int64(10)),
			CreatedAt:        time.Now(),
		})
		token := signedToken(10, time.Now().Add(time.Hour))
		status, body := h.request(http.MethodPost, "/api/delivery/complete", token, map[string]any{"deliveryId": 300})
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["remaining"]).To(Equal(0.0))
		Expect(h.store.Get(300).Status).To(Equal(repository.StatusDeliveryCompleted))
	})

	It("should require a parcel id on completion", func() {
		token := signedToken(10, time.Now().Add(time.Hour))
		status, _ := h.request(http.MethodPost, "/api/delivery/complete", token, map[string]any{})
		Expect(status).To(Equal(http.StatusBadRequest))
	})

	It("should convert and assign through the import and assign endpoints", func() {
		h.store.Add(repository.Parcel{
			ID:             600,
			RecipientAddr:  "서울시 강남구 테헤란로 1",
			Status:         repository.StatusPickupCompleted,
			PickupDriverID: lo.ToPtr(int64(5)),
			CreatedAt:      time.Now(),
		})
		status, body := h.request(http.MethodPost, "/api/delivery/import", "", nil)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body["converted"]).To(Equal(1.0))

		status, body = h.request(http.MethodPost, "/api/delivery/assign", "", nil)
		Expect(status).To(Equal(http.StatusOK))
		assignments := body["assignments"].(map[string]any)
		Expect(assignments).To(HaveKey("강남구"))
	})
})
