package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/tutorbook/libs/auth"
)

func backend(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", name)
		w.Header().Set("X-Seen-Authorization", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRoutesReachUpstreams(t *testing.T) {
	scheduling, payments, notification := backend("scheduling"), backend("payments"), backend("notification")
	defer scheduling.Close()
	defer payments.Close()
	defer notification.Close()

	secret := "test-secret"
	mux := http.NewServeMux()
	registerRoutes(mux, secret, upstreams{
		Scheduling:   mustParseURL(scheduling.URL),
		Payments:     mustParseURL(payments.URL),
		Notification: mustParseURL(notification.URL),
	})
	gw := httptest.NewServer(mux)
	defer gw.Close()

	token, err := auth.SignHS256(auth.Claims{
		Sub:  "student-1",
		Role: auth.RoleStudent,
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(time.Hour).Unix(),
	}, secret)
	if err != nil {
		t.Fatalf("SignHS256: %v", err)
	}

	cases := []struct {
		method   string
		path     string
		token    string
		want     int
		upstream string
	}{
		{http.MethodGet, "/api/v1/tutors/tutor-1/slots", "", http.StatusOK, "scheduling"},
		{http.MethodGet, "/api/v1/courses?term=20263&search=csci", "", http.StatusOK, "scheduling"},
		{http.MethodGet, "/api/v1/terms", "", http.StatusOK, "scheduling"},
		{http.MethodPost, "/api/v1/sessions", "", http.StatusUnauthorized, ""},
		{http.MethodPost, "/api/v1/sessions", token, http.StatusOK, "scheduling"},
		{http.MethodPost, "/api/v1/payments/setup", "badtoken", http.StatusUnauthorized, ""},
		{http.MethodPost, "/api/v1/payments/setup", token, http.StatusOK, "payments"},
		{http.MethodPost, "/api/v1/payments/webhooks/stripe", "", http.StatusOK, "payments"},
		{http.MethodGet, "/api/v1/notifications", token, http.StatusOK, "notification"},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(tc.method, gw.URL+tc.path, nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, resp.StatusCode)
		}
		if got := resp.Header.Get("X-Upstream"); got != tc.upstream {
			t.Fatalf("%s %s: expected upstream %q, got %q", tc.method, tc.path, tc.upstream, got)
		}
		if tc.upstream != "" && tc.token != "" && resp.Header.Get("X-Seen-Authorization") != "Bearer "+tc.token {
			t.Fatalf("%s %s: authorization not forwarded", tc.method, tc.path)
		}
	}
}

func TestMustParseURL(t *testing.T) {
	u := mustParseURL("http://scheduling-service:8081")
	if u.Host != "scheduling-service:8081" {
		t.Fatalf("unexpected host %q", u.Host)
	}
}
