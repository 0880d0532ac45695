package alert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/daily-alert-service/internal/geocode"
	"github.com/kjstillabower/daily-alert-service/internal/models"
	"github.com/kjstillabower/daily-alert-service/internal/notify"
)

func f64(v float64) *float64 { return &v }

type fakeGeocoder struct {
	loc   models.Location
	err   error
	calls int
}

func (g *fakeGeocoder) Resolve(ctx context.Context, city string) (models.Location, error) {
	g.calls++
	if g.err != nil {
		return models.Location{}, g.err
	}
	return g.loc, nil
}

type fakeWeatherClient struct {
	snap  models.WeatherSnapshot
	errs  []error // consumed per call; nil entry means success
	calls int
}

func (c *fakeWeatherClient) Fetch(ctx context.Context, loc models.Location) (models.WeatherSnapshot, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return models.WeatherSnapshot{}, err
		}
	}
	return c.snap, nil
}

type fakeAirClient struct {
	snap  models.AirQualitySnapshot
	errs  []error
	calls int
}

func (c *fakeAirClient) Fetch(ctx context.Context, loc models.Location) (models.AirQualitySnapshot, error) {
	c.calls++
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		if err != nil {
			return models.AirQualitySnapshot{}, err
		}
	}
	return c.snap, nil
}

type sentEmail struct {
	to      string
	subject string
	body    string
}

type fakeNotifier struct {
	mu       sync.Mutex
	errs     []error
	sent     []sentEmail
	attempts int
}

func (n *fakeNotifier) Send(ctx context.Context, toEmail, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attempts++
	if len(n.errs) > 0 {
		err := n.errs[0]
		n.errs = n.errs[1:]
		if err != nil {
			return err
		}
	}
	n.sent = append(n.sent, sentEmail{to: toEmail, subject: subject, body: body})
	return nil
}

func (n *fakeNotifier) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// sleepStep controls how a scripted clock advances on one sleep call.
// When useRequested is set, the clock jumps by the runner's requested duration.
type sleepStep struct {
	advance      time.Duration
	useRequested bool
}

// scriptedClock drives a Runner deterministically: each sleep call consumes
// one step; when the script is exhausted the sleep reports cancellation,
// which stops the runner cleanly.
type scriptedClock struct {
	now       time.Time
	steps     []sleepStep
	requested []time.Duration
}

func (c *scriptedClock) Now() time.Time { return c.now }

func (c *scriptedClock) Sleep(ctx context.Context, d time.Duration) error {
	c.requested = append(c.requested, d)
	if len(c.steps) == 0 {
		return context.Canceled
	}
	st := c.steps[0]
	c.steps = c.steps[1:]
	if st.useRequested {
		c.now = c.now.Add(d)
	} else {
		c.now = c.now.Add(st.advance)
	}
	return nil
}

func parisWeather() models.WeatherSnapshot {
	return models.WeatherSnapshot{
		Date:         "2024-06-01",
		TempMaxC:     22.0,
		TempMinC:     14.0,
		PrecipMM:     0.0,
		UVIndexMax:   f64(6.1),
		RadiationWM2: f64(210.0),
	}
}

func newTestRunner(t *testing.T, clock *scriptedClock, geocoder *fakeGeocoder, weather *fakeWeatherClient, air *fakeAirClient, notifier *fakeNotifier) *Runner {
	t.Helper()
	r := NewRunner(
		models.Subscription{Email: "a@example.com", City: "Paris"},
		geocoder, weather, air, notifier,
		6, time.Minute,
		zap.NewNop(),
	)
	if clock != nil {
		r.now = clock.Now
		r.sleep = clock.Sleep
	}
	return r
}

func TestRunner_EndToEnd_OneEmailPerDay(t *testing.T) {
	clock := &scriptedClock{
		now: time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC),
		steps: []sleepStep{
			{useRequested: true},             // sleep until 06:00 due time
			{advance: time.Minute},           // a later wake-up at 06:01 the same day
		},
	}
	geocoder := &fakeGeocoder{loc: models.Location{Latitude: 48.85, Longitude: 2.35}}
	weather := &fakeWeatherClient{snap: parisWeather()}
	air := &fakeAirClient{snap: models.AirQualitySnapshot{PM25AvgUGM3: f64(8.3)}}
	notifier := &fakeNotifier{}

	r := newTestRunner(t, clock, geocoder, weather, air, notifier)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if geocoder.calls != 1 {
		t.Errorf("geocoder calls = %d, want exactly 1 (resolved once per subscription)", geocoder.calls)
	}
	if notifier.sentCount() != 1 {
		t.Fatalf("emails sent = %d, want exactly 1 for the day", notifier.sentCount())
	}

	sent := notifier.sent[0]
	if sent.to != "a@example.com" {
		t.Errorf("to = %q, want a@example.com", sent.to)
	}
	if sent.subject != "Daily Alert 2024-06-01 - Paris" {
		t.Errorf("subject = %q, want %q", sent.subject, "Daily Alert 2024-06-01 - Paris")
	}
	for _, metric := range []string{
		"- Max Temp: 22 °C",
		"- Min Temp: 14 °C",
		"- Precipitation: 0 mm",
		"- UV Index (max): 6.1",
		"- Solar Radiation: 210 W/m²",
		"- PM2.5 Average: 8.3 μg/m³",
	} {
		if !strings.Contains(sent.body, metric) {
			t.Errorf("body missing %q:\n%s", metric, sent.body)
		}
	}

	if got := r.LastSentDate(); got != "2024-06-01" {
		t.Errorf("LastSentDate() = %q, want 2024-06-01", got)
	}

	// First wait targets the 06:00 due instant; after delivery the runner
	// schedules the next day's alert, not another same-day poll.
	if clock.requested[0] != time.Hour {
		t.Errorf("first wait = %v, want 1h until the alert hour", clock.requested[0])
	}
	if clock.requested[1] != 24*time.Hour {
		t.Errorf("post-delivery wait = %v, want 24h until tomorrow's alert", clock.requested[1])
	}
}

func TestRunner_RetriesWithinDayAfterFetchFailure(t *testing.T) {
	clock := &scriptedClock{
		now: time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC),
		steps: []sleepStep{
			{useRequested: true}, // retry interval after the failed cycle
		},
	}
	geocoder := &fakeGeocoder{loc: models.Location{Latitude: 48.85, Longitude: 2.35}}
	weather := &fakeWeatherClient{snap: parisWeather(), errs: []error{errors.New("upstream blip"), nil}}
	air := &fakeAirClient{snap: models.AirQualitySnapshot{}}
	notifier := &fakeNotifier{}

	r := newTestRunner(t, clock, geocoder, weather, air, notifier)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if weather.calls != 2 {
		t.Errorf("weather calls = %d, want 2 (failed once, retried)", weather.calls)
	}
	if notifier.sentCount() != 1 {
		t.Errorf("emails sent = %d, want 1", notifier.sentCount())
	}
	if clock.requested[0] != time.Minute {
		t.Errorf("retry wait = %v, want the retry interval (1m)", clock.requested[0])
	}
	if got := r.LastSentDate(); got != "2024-06-01" {
		t.Errorf("LastSentDate() = %q, want 2024-06-01", got)
	}
}

func TestRunner_HourRollover_StillDeliversSameDay(t *testing.T) {
	// Failure at 06:58; by the retry the hour has rolled over to 07:01.
	// The day must not be lost.
	clock := &scriptedClock{
		now: time.Date(2024, 6, 1, 6, 58, 0, 0, time.UTC),
		steps: []sleepStep{
			{advance: 3 * time.Minute},
		},
	}
	geocoder := &fakeGeocoder{loc: models.Location{Latitude: 48.85, Longitude: 2.35}}
	weather := &fakeWeatherClient{snap: parisWeather(), errs: []error{errors.New("upstream blip"), nil}}
	air := &fakeAirClient{snap: models.AirQualitySnapshot{}}
	notifier := &fakeNotifier{}

	r := newTestRunner(t, clock, geocoder, weather, air, notifier)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if notifier.sentCount() != 1 {
		t.Fatalf("emails sent = %d, want 1 after the hour rolled over", notifier.sentCount())
	}
	if got := r.LastSentDate(); got != "2024-06-01" {
		t.Errorf("LastSentDate() = %q, want 2024-06-01", got)
	}
}

func TestRunner_DeliveryFailureDoesNotMarkDaySent(t *testing.T) {
	clock := &scriptedClock{
		now: time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC),
		steps: []sleepStep{
			{useRequested: true},
		},
	}
	geocoder := &fakeGeocoder{loc: models.Location{Latitude: 48.85, Longitude: 2.35}}
	weather := &fakeWeatherClient{snap: parisWeather()}
	air := &fakeAirClient{snap: models.AirQualitySnapshot{}}
	notifier := &fakeNotifier{errs: []error{notify.ErrDeliveryFailed, nil}}

	r := newTestRunner(t, clock, geocoder, weather, air, notifier)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if notifier.attempts != 2 {
		t.Errorf("send attempts = %d, want 2 (rejected send retried)", notifier.attempts)
	}
	if notifier.sentCount() != 1 {
		t.Errorf("emails delivered = %d, want 1", notifier.sentCount())
	}
	if got := r.LastSentDate(); got != "2024-06-01" {
		t.Errorf("LastSentDate() = %q, want 2024-06-01 (set only after a successful send)", got)
	}
}

func TestRunner_GeocodeFailure_Terminates(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "city not found", err: geocode.ErrCityNotFound, wantErr: geocode.ErrCityNotFound},
		{name: "transport failure", err: geocode.ErrUpstream, wantErr: geocode.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &scriptedClock{now: time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC)}
			geocoder := &fakeGeocoder{err: tt.err}
			weather := &fakeWeatherClient{}
			air := &fakeAirClient{}
			notifier := &fakeNotifier{}

			r := newTestRunner(t, clock, geocoder, weather, air, notifier)
			err := r.Run(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if weather.calls != 0 {
				t.Errorf("weather calls = %d, want 0 (loop never starts)", weather.calls)
			}
			if notifier.attempts != 0 {
				t.Errorf("send attempts = %d, want 0", notifier.attempts)
			}
			if len(clock.requested) != 0 {
				t.Errorf("runner slept %d times, want 0 (terminated before polling)", len(clock.requested))
			}
		})
	}
}

func TestRunner_CancelledContext_StopsCleanly(t *testing.T) {
	geocoder := &fakeGeocoder{loc: models.Location{Latitude: 48.85, Longitude: 2.35}}
	weather := &fakeWeatherClient{snap: parisWeather()}
	air := &fakeAirClient{snap: models.AirQualitySnapshot{}}
	notifier := &fakeNotifier{}

	r := newTestRunner(t, nil, geocoder, weather, air, notifier)
	r.now = func() time.Time { return time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after context cancellation")
	}
	if notifier.attempts != 0 {
		t.Errorf("send attempts = %d, want 0", notifier.attempts)
	}
}

func TestNextDue(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		hour int
		want time.Time
	}{
		{
			name: "before the alert hour",
			now:  time.Date(2024, 6, 1, 5, 0, 0, 0, time.UTC),
			hour: 6,
			want: time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "exactly at the alert hour",
			now:  time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC),
			hour: 6,
			want: time.Date(2024, 6, 2, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "after the alert hour",
			now:  time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC),
			hour: 6,
			want: time.Date(2024, 6, 2, 6, 0, 0, 0, time.UTC),
		},
		{
			name: "midnight alert hour",
			now:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
			hour: 0,
			want: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextDue(tt.now, tt.hour); !got.Equal(tt.want) {
				t.Errorf("nextDue(%v, %d) = %v, want %v", tt.now, tt.hour, got, tt.want)
			}
		})
	}
}
