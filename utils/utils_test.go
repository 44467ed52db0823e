package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/phillip/iinsaf-marketplace-go/config"
	models "github.com/phillip/iinsaf-marketplace-go/models"
)

func TestExtractPublicID(t *testing.T) {
	require := require.New(t)

	id, err := extractPublicID("https://res.cloudinary.com/demo/image/upload/v1234567890/ads/abc123.jpg")
	require.NoError(err)
	require.Equal("ads/abc123", id)

	id, err = extractPublicID("https://res.cloudinary.com/demo/image/upload/proofs/shot.png")
	require.NoError(err)
	require.Equal("proofs/shot", id)

	_, err = extractPublicID("https://example.com/nothing.png")
	require.Error(err)
}

func TestYouTubeVideoID(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ?t=3":            "dQw4w9WgXcQ",
		"https://youtube.com/shorts/abcDEF12345":      "abcDEF12345",
		"https://m.youtube.com/embed/xyz":             "xyz",
	}
	for in, want := range cases {
		got, err := YouTubeVideoID(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := YouTubeVideoID("https://facebook.com/video/1")
	require.ErrorIs(t, err, ErrUnsupportedPlatform)
}

func TestYouTubeViews(t *testing.T) {
	require := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("/videos", r.URL.Path)
		require.Equal("statistics", r.URL.Query().Get("part"))
		require.Equal("key-1", r.URL.Query().Get("key"))
		if r.URL.Query().Get("id") != "known" {
			_, _ = w.Write([]byte(`{"items":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"statistics":{"viewCount":"1520"}}]}`))
	}))
	defer srv.Close()

	y, err := NewYouTubeViews(&config.Config{YouTubeAPIKey: "key-1", YouTubeBaseURL: srv.URL})
	require.NoError(err)

	views, err := y.Views(t.Context(), "youtube", "https://youtu.be/known")
	require.NoError(err)
	require.EqualValues(1520, views)

	_, err = y.Views(t.Context(), "youtube", "https://youtu.be/missing")
	require.ErrorIs(err, ErrVideoNotFound)

	_, err = y.Views(t.Context(), "facebook", "https://facebook.com/v/1")
	require.ErrorIs(err, ErrUnsupportedPlatform)
}

func TestRazorpayClient(t *testing.T) {
	require := require.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(ok)
		require.Equal("rzp_key", user)
		require.Equal("rzp_secret", pass)

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/orders":
			var body map[string]any
			require.NoError(json.NewDecoder(r.Body).Decode(&body))
			require.EqualValues(95580, body["amount"])
			require.Equal("INR", body["currency"])
			_, _ = w.Write([]byte(`{"id":"order_1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/payments/pay_1":
			_, _ = w.Write([]byte(`{"id":"pay_1","order_id":"order_1","status":"captured","method":"upi","amount":95580}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"The id provided does not exist"}}`))
		}
	}))
	defer srv.Close()

	rzp, err := NewRazorpayClient(&config.Config{
		RazorpayKeyID:     "rzp_key",
		RazorpayKeySecret: "rzp_secret",
		RazorpayBaseURL:   srv.URL,
	})
	require.NoError(err)

	orderID, err := rzp.CreateOrder(t.Context(), decimal.RequireFromString("955.80"), "INR", "rcpt")
	require.NoError(err)
	require.Equal("order_1", orderID)

	p, err := rzp.FetchPayment(t.Context(), "pay_1")
	require.NoError(err)
	require.True(p.Captured())
	require.Equal(models.GatewayPayment{
		ID: "pay_1", OrderID: "order_1", Status: "captured", Method: "upi", Amount: p.Amount,
	}, p)
	require.True(p.Amount.Equal(decimal.RequireFromString("955.8")))

	_, err = rzp.FetchPayment(t.Context(), "pay_missing")
	require.ErrorContains(err, "does not exist")
}

func TestZeptoMailerNotify(t *testing.T) {
	require := require.New(t)
	var got emailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal("Zoho-enczapikey k", r.Header.Get("Authorization"))
		require.NoError(json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	mailer, err := NewZeptoMailer(&config.Config{
		ZeptoAPIURL: srv.URL,
		ZeptoAPIKey: "Zoho-enczapikey k",
		EmailFrom:   "noreply@iinsaf.test",
	})
	require.NoError(err)

	err = mailer.Notify(t.Context(), models.Notification{
		Kind:      models.NotifyPayout,
		Recipient: models.User{Name: "Asha", Email: "asha@example.com"},
		Subject:   "Payout credited",
		Body:      "₹300 <credited>",
	})
	require.NoError(err)
	require.Equal("noreply@iinsaf.test", got.From.Address)
	require.Equal("asha@example.com", got.To[0].Email.Address)
	require.Equal("<p>₹300 &lt;credited&gt;</p>", got.HtmlBody)

	require.Error(mailer.Notify(t.Context(), models.Notification{Recipient: models.User{}}))
}
