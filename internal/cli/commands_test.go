package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storefront/internal/ledger"
	"github.com/roach88/storefront/internal/notify"
	"github.com/roach88/storefront/internal/store"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// mustExecute runs args against db and fails the test on error.
func mustExecute(t *testing.T, db string, args ...string) string {
	t.Helper()
	out, errOut, err := execute(t, append(args, "--db", db)...)
	require.NoError(t, err, "stdout: %s\nstderr: %s", out, errOut)
	return out
}

// decodeData decodes a JSON success response and returns its data field.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func testDB(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "shop.db")
	mustExecute(t, db, "product", "put", "1", "--name", "Pixel 8", "--price", "499.99")
	mustExecute(t, db, "product", "put", "2", "--name", "Phone Case", "--price", "10")
	mustExecute(t, db, "product", "put", "3", "--name", "Sold Out", "--price", "5", "--unavailable")
	return db
}

func TestCartAndCheckoutFlow(t *testing.T) {
	db := testDB(t)

	out := mustExecute(t, db, "cart", "add", "1", "--user", "42")
	assert.Equal(t, "Pixel 8 x1 (cart has 1 items)\n", out)

	out = mustExecute(t, db, "cart", "add", "1", "--user", "42", "--format", "json")
	var added struct {
		Line      CartLineView `json:"line"`
		ItemCount int          `json:"item_count"`
		Created   bool         `json:"created"`
	}
	decodeData(t, out, &added)
	assert.False(t, added.Created)
	assert.Equal(t, 2, added.Line.Quantity)
	assert.Equal(t, "999.98", added.Line.LineTotal)
	assert.Equal(t, "Uncategorized", added.Line.Category)

	out = mustExecute(t, db, "cart", "totals", "--user", "42", "--format", "json")
	var totals TotalsView
	decodeData(t, out, &totals)
	assert.Equal(t, TotalsView{Subtotal: "999.98", Tax: "150.00", Total: "1149.98", ItemCount: 2}, totals)

	out = mustExecute(t, db, "order", "checkout", "--user", "42",
		"--name", "Tendai Moyo", "--phone", "0771234567", "--location", "12 Main St",
		"--delivery", "harare", "--format", "json")
	var orders []OrderView
	decodeData(t, out, &orders)
	require.Len(t, orders, 1)
	assert.Equal(t, "Pixel 8", orders[0].Product)
	assert.Equal(t, "Tendai Moyo", orders[0].Customer)
	assert.Equal(t, "5.00", orders[0].DeliveryCost)
	assert.Equal(t, "1004.98", orders[0].GrandTotal)
	assert.Equal(t, "pending", orders[0].DeliveryStatus)
	assert.True(t, strings.HasSuffix(orders[0].OrderNumber, "-0001"), orders[0].OrderNumber)

	out = mustExecute(t, db, "cart", "list", "--user", "42")
	assert.Equal(t, "Cart is empty.\n", out)

	out = mustExecute(t, db, "order", "status", strconv.FormatInt(orders[0].ID, 10), "shipped", "--user", "42")
	assert.Contains(t, out, "[shipped]")

	out = mustExecute(t, db, "order", "list", "--user", "42")
	assert.Contains(t, out, "Pixel 8 x2")
}

func TestCartSetAndRemove(t *testing.T) {
	db := testDB(t)
	mustExecute(t, db, "cart", "add", "2", "--user", "5")

	out := mustExecute(t, db, "cart", "set", "2", "4", "--user", "5")
	assert.Equal(t, "Phone Case x4\n", out)

	_, _, err := execute(t, "cart", "set", "2", "0", "--user", "5", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ledger.CodeInvalidInput, ledger.CodeOf(err))

	_, _, err = execute(t, "cart", "set", "1", "2", "--user", "5", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ledger.CodeNotFound, ledger.CodeOf(err))

	out = mustExecute(t, db, "cart", "remove", "2", "--user", "5")
	assert.Equal(t, "removed product 2\n", out)
	out = mustExecute(t, db, "cart", "remove", "2", "--user", "5")
	assert.Equal(t, "product 2 was not in the cart\n", out)
}

func TestCartAddRejections(t *testing.T) {
	db := testDB(t)

	_, _, err := execute(t, "cart", "add", "3", "--user", "1", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ledger.CodeProductUnavailable, ledger.CodeOf(err))

	_, _, err = execute(t, "cart", "add", "99", "--user", "1", "--db", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "product 99 does not exist")

	_, _, err = execute(t, "cart", "add", "abc", "--user", "1", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "cart", "add", "1", "--user", "1", "--price", "x", "--db", db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid price")
}

func TestCartPriceOverrideAndImageURL(t *testing.T) {
	db := testDB(t)
	mustExecute(t, db, "cart", "add", "1", "--user", "8", "--price", "450",
		"--image", "https://cdn.example.com/media/phones/pixel.jpg")

	out := mustExecute(t, db, "cart", "list", "--user", "8",
		"--media-base", "https://shop.example.com", "--format", "json")
	var listing struct {
		Lines  []CartLineView `json:"lines"`
		Totals TotalsView     `json:"totals"`
	}
	decodeData(t, out, &listing)
	require.Len(t, listing.Lines, 1)
	assert.Equal(t, "450.00", listing.Lines[0].Price)
	assert.Equal(t, "https://shop.example.com/media/phones/pixel.jpg", listing.Lines[0].Image)
	assert.Equal(t, "517.50", listing.Totals.Total)
}

var sessionLine = regexp.MustCompile(`session: (\S+)`)

func TestAnonymousSession(t *testing.T) {
	db := testDB(t)

	_, errOut, err := execute(t, "cart", "add", "2", "--db", db)
	require.NoError(t, err)
	m := sessionLine.FindStringSubmatch(errOut)
	require.Len(t, m, 2, "stderr: %s", errOut)
	key := m[1]

	out, errOut, err := execute(t, "cart", "list", "--session", key, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Phone Case")
	assert.NotContains(t, errOut, "session:")

	// An unknown key starts a new, empty session.
	out, errOut, err = execute(t, "cart", "list", "--session", "forged", "--db", db)
	require.NoError(t, err)
	assert.Equal(t, "Cart is empty.\n", out)
	assert.Regexp(t, sessionLine, errOut)
}

func TestOrderPlaceDirect(t *testing.T) {
	db := filepath.Join(t.TempDir(), "shop.db")
	args := []string{"order", "place", "--user", "9",
		"--first-name", "Farai", "--last-name", "Zhou", "--phone", "0770000000", "--location", "Belvedere",
		"--line", "Charger:3:4", "--format", "json"}

	var first []OrderView
	decodeData(t, mustExecute(t, db, args...), &first)
	require.Len(t, first, 1)
	assert.Equal(t, "12.00", first[0].LineTotal)
	assert.Equal(t, "0.00", first[0].DeliveryCost)
	assert.Equal(t, "12.00", first[0].GrandTotal)

	// Suffixes continue across processes.
	var second []OrderView
	decodeData(t, mustExecute(t, db, args...), &second)
	require.Len(t, second, 1)
	assert.True(t, strings.HasSuffix(second[0].OrderNumber, "-0002"), second[0].OrderNumber)

	_, _, err := execute(t, "order", "place", "--user", "9", "--line", "Charger:1:4", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ledger.CodeInvalidInput, ledger.CodeOf(err))
}

func TestOrderErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "shop.db")
	mustExecute(t, db, "order", "place", "--user", "1", "--name", "A B", "--phone", "1",
		"--location", "x", "--line", "Thing:1:1")

	_, _, err := execute(t, "order", "status", "1", "lost", "--user", "1", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ledger.CodeInvalidStatus, ledger.CodeOf(err))

	_, _, err = execute(t, "order", "remove", "1", "--user", "2", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ledger.CodeNotFound, ledger.CodeOf(err))

	out := mustExecute(t, db, "order", "list", "--user", "2")
	assert.Equal(t, "No orders.\n", out)

	_, _, err = execute(t, "order", "checkout", "--user", "2", "--name", "A B", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ledger.CodeInvalidInput, ledger.CodeOf(err))

	out = mustExecute(t, db, "order", "remove", "1", "--user", "1")
	assert.Equal(t, "removed order 1\n", out)
}

func TestParseDirectLine(t *testing.T) {
	dl, err := parseDirectLine("Pixel 8:2:499.99:https://cdn.example.com/media/p.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Pixel 8", dl.Name)
	assert.Equal(t, 2, dl.Quantity)
	assert.True(t, dl.Price.Equal(decimal.RequireFromString("499.99")))
	assert.Equal(t, "https://cdn.example.com/media/p.jpg", dl.ImageRef)

	for _, bad := range []string{"Pixel", "Pixel:two:1", "Pixel:1:free"} {
		_, err := parseDirectLine(bad)
		require.Error(t, err, bad)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	}
}

func TestCustomerFlags(t *testing.T) {
	c := (&CustomerFlags{FullName: "Chipo  Dube", Phone: "1", Location: "x"}).Customer()
	assert.Equal(t, "Chipo", c.FirstName)
	assert.Equal(t, "Dube", c.LastName)

	c = (&CustomerFlags{FullName: "Ignored Name", FirstName: "Rudo"}).Customer()
	assert.Equal(t, "Rudo", c.FirstName)
	assert.Equal(t, "", c.LastName)
}

func TestOrderTariff(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "shop.cue")
	writeFile(t, cfgPath, `delivery: {Harare: "4.5", Bulawayo: "6"}`)

	out, _, err := execute(t, "order", "tariff", "--config", cfgPath, "--format", "json")
	require.NoError(t, err)
	var costs map[string]string
	decodeData(t, out, &costs)
	assert.Equal(t, map[string]string{"harare": "4.50", "bulawayo": "6.00"}, costs)

	out, _, err = execute(t, "order", "tariff")
	require.NoError(t, err)
	assert.Contains(t, out, "beitbridge")
}

func TestConfigErrors(t *testing.T) {
	_, _, err := execute(t, "order", "tariff", "--config", "/nonexistent/shop.cue")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	cfgPath := filepath.Join(t.TempDir(), "shop.cue")
	writeFile(t, cfgPath, `tax_rate: "abc"`)
	_, _, err = execute(t, "cart", "totals", "--user", "1", "--config", cfgPath,
		"--db", filepath.Join(t.TempDir(), "shop.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestImagesNormalize(t *testing.T) {
	db := filepath.Join(t.TempDir(), "shop.db")

	st, err := store.Open(db)
	require.NoError(t, err)
	err = st.InTx(context.Background(), func(tx *store.Tx) error {
		return tx.InsertCartLine(context.Background(), ledger.CartLine{
			Scope:     ledger.UserScope("1"),
			ProductID: 1,
			Name:      "Legacy",
			UnitPrice: decimal.NewFromInt(1),
			Category:  "Phones",
			Condition: "New",
			ImageRef:  "/media/legacy/a.jpg",
			Quantity:  1,
			AddedAt:   time.Date(2025, 8, 11, 16, 38, 0, 0, time.UTC),
		})
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out := mustExecute(t, db, "images", "normalize")
	assert.Contains(t, out, `cart_line/1: "/media/legacy/a.jpg" -> "legacy/a.jpg"`)
	assert.Contains(t, out, "1 image references would change")

	out = mustExecute(t, db, "images", "normalize", "--apply")
	assert.Contains(t, out, "Rewrote 1 image references.")

	out = mustExecute(t, db, "images", "normalize", "--format", "json")
	var res struct {
		Applied bool          `json:"applied"`
		Changes []ledger.ImageChange `json:"changes"`
	}
	decodeData(t, out, &res)
	assert.False(t, res.Applied)
	assert.Empty(t, res.Changes)
}

func TestEventsPublishedToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := notify.NewRedisTopic(client, "shop_events").Subscribe(ctx)
	require.NoError(t, err)

	cfgPath := filepath.Join(t.TempDir(), "shop.cue")
	writeFile(t, cfgPath, `notify: {topic: "shop_events", redis_url: "redis://`+mr.Addr()+`"}`)

	db := testDB(t)
	_, _, err = execute(t, "cart", "add", "2", "--user", "3", "--config", cfgPath, "--db", db)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, ledger.ActionCreated, ev.Action)
		assert.Equal(t, ledger.EntityCartLine, ev.Kind)
		assert.Equal(t, "Phone Case", ev.Payload["name"])
		assert.Equal(t, int64(2), ev.Payload["product_id"])
	case <-ctx.Done():
		t.Fatal("no change event received")
	}
}

func TestProductPutPublishesEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, err := notify.NewRedisTopic(client, "shop_events").Subscribe(ctx)
	require.NoError(t, err)

	cfgPath := filepath.Join(t.TempDir(), "shop.cue")
	writeFile(t, cfgPath, `notify: {topic: "shop_events", redis_url: "redis://`+mr.Addr()+`"}`)
	db := filepath.Join(t.TempDir(), "shop.db")

	out := mustExecute(t, db, "product", "put", "5", "--name", "Charger", "--price", "12.5", "--config", cfgPath, "--format", "json")
	var res struct {
		Created bool `json:"created"`
	}
	decodeData(t, out, &res)
	assert.True(t, res.Created)
	mustExecute(t, db, "product", "put", "5", "--name", "Charger", "--price", "12.5", "--unavailable", "--config", cfgPath)

	for _, want := range []ledger.Action{ledger.ActionCreated, ledger.ActionUpdated} {
		select {
		case ev := <-events:
			assert.Equal(t, want, ev.Action)
			assert.Equal(t, ledger.EntityProduct, ev.Kind)
			assert.Equal(t, int64(5), ev.Payload["product_id"])
			assert.Equal(t, "12.50", ev.Payload["price"])
			assert.Equal(t, want == ledger.ActionCreated, ev.Payload["available"])
		case <-ctx.Done():
			t.Fatal("no product event received")
		}
	}
}

func TestWatch(t *testing.T) {
	mr := miniredis.RunT(t)

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		cmd := NewRootCommand()
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"watch", "--redis", "redis://" + mr.Addr(), "--count", "1"})
		err := cmd.Execute()
		done <- result{out.String(), err}
	}()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(notify.DefaultTopic)[notify.DefaultTopic] == 1
	}, 5*time.Second, 10*time.Millisecond)

	payload, err := notify.Encode(ledger.ChangeEvent{
		Action:  ledger.ActionDeleted,
		Kind:    ledger.EntityOrder,
		Payload: map[string]any{"id": int64(7)},
	})
	require.NoError(t, err)
	mr.Publish(notify.DefaultTopic, string(payload))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, `{"action":"deleted","data":{"id":7},"model":"order"}`+"\n", r.out)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not exit")
	}
}

func TestWatchRequiresRedis(t *testing.T) {
	_, _, err := execute(t, "watch")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no Redis URL")
}
