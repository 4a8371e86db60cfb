package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	cl "github.com/Zubariev/quarantine/internal/cli"
	"github.com/Zubariev/quarantine/internal/config"
	"github.com/Zubariev/quarantine/internal/game"
	"github.com/Zubariev/quarantine/internal/syncq"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "qg",
		Short:        "Quarantine game client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "game API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newStatsCmd(&apiBase),
		newScheduleCmd(&apiBase),
		newShopCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		printError(fmt.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if errors.Is(err, cl.ErrNoSession) {
		return cl.Session{}, fmt.Errorf("not logged in, run `qg login` first")
	}
	if err != nil {
		return cl.Session{}, fmt.Errorf("load session: %w", err)
	}
	return sess, nil
}

func openQueue() (*syncq.Queue, error) {
	dir, err := cl.BaseDir()
	if err != nil {
		return nil, err
	}
	return syncq.Open(dir)
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create a Quarantine account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return credentialsCommand(cmd, apiBase, true)
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login to Quarantine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return credentialsCommand(cmd, apiBase, false)
		},
	}
}

func credentialsCommand(cmd *cobra.Command, apiBase *string, signup bool) error {
	email, err := promptRequired("Email")
	if err != nil {
		return err
	}
	password, err := promptPassword("Password")
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	client := newClient(apiBase)
	call := client.Login
	if signup {
		call = client.Signup
	}
	session, err := call(ctx, email, password)
	if err != nil {
		return err
	}
	if strings.TrimSpace(session.AccessToken) == "" {
		printWarn("Account created. Confirm your email, then run `qg login`.")
		return nil
	}
	if err := cl.SaveSession(cl.Session{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		Email:        session.User.Email,
		UserID:       session.User.ID,
	}); err != nil {
		return err
	}
	if signup {
		printSuccess("Signup complete. Session saved.")
	} else {
		printSuccess("Login successful.")
	}
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newStatsCmd(apiBase *string) *cobra.Command {
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show your stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Stats(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderStats(out)
			return nil
		},
	}

	var reason string
	add := &cobra.Command{
		Use:   "add <stat> <delta>",
		Short: "Apply a signed change to one stat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			stat, err := game.ParseStat(args[0])
			if err != nil {
				return err
			}
			delta, err := strconv.ParseInt(strings.TrimSpace(args[1]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid delta %q", args[1])
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			value, err := newClient(apiBase).UpdateStat(ctx, sess.AccessToken, string(stat), delta, reason)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s is now %d", stat, value))
			return nil
		},
	}
	add.Flags().StringVar(&reason, "reason", "", "free-text reason recorded in history")

	var (
		statFilter string
		limit      int
	)
	history := &cobra.Command{
		Use:   "history",
		Short: "Show recent stat changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if statFilter != "" {
				if _, err := game.ParseStat(statFilter); err != nil {
					return err
				}
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			entries, err := newClient(apiBase).History(ctx, sess.AccessToken, statFilter, limit)
			if err != nil {
				return err
			}
			renderHistory(entries)
			return nil
		},
	}
	history.Flags().StringVar(&statFilter, "stat", "", "only show one stat")
	history.Flags().IntVar(&limit, "limit", 0, "number of entries (server default when 0)")

	stats.AddCommand(add, history)
	return stats
}

func newScheduleCmd(apiBase *string) *cobra.Command {
	schedule := &cobra.Command{
		Use:   "schedule",
		Short: "Plan your days",
	}

	var day string
	show := &cobra.Command{
		Use:   "show",
		Short: "Show the plan for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			client := newClient(apiBase)
			sched, err := client.Schedule(ctx, sess.AccessToken, day)
			if err != nil {
				return err
			}
			acts, err := client.Activities(ctx, sess.AccessToken, "")
			if err != nil {
				return err
			}
			renderSchedule(sched, acts)
			return nil
		},
	}
	show.Flags().StringVar(&day, "day", "", "date as YYYY-MM-DD (today when empty)")

	var setDay string
	set := &cobra.Command{
		Use:   "set <activity@start+hours>...",
		Short: "Replace the plan for a day, e.g. work-freelance@9+4",
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, err := scheduleFromArgs(setDay, args)
			if err != nil {
				return err
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			saved, err := newClient(apiBase).SaveSchedule(ctx, sess.AccessToken, sched)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method: http.MethodPost,
					Path:   "/v1/schedule",
					Body:   cl.ScheduleBody(sched),
					Key:    "schedule:" + sched.Date,
				})
			}
			printSuccess(fmt.Sprintf("Saved %d blocks for %s.", len(saved.Blocks), saved.Date))
			return nil
		},
	}
	set.Flags().StringVar(&setDay, "day", "", "date as YYYY-MM-DD (today when empty)")

	var from, to string
	syncCmd := &cobra.Command{
		Use:   "range",
		Short: "List saved days between two dates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == "" || to == "" {
				return fmt.Errorf("--from and --to are required")
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			days, err := newClient(apiBase).SyncSchedules(ctx, sess.AccessToken, from, to)
			if err != nil {
				return err
			}
			renderScheduleRange(days)
			return nil
		},
	}
	syncCmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD")
	syncCmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD")

	schedule.AddCommand(show, set, syncCmd, newActivitiesCmd(apiBase))
	return schedule
}

func newActivitiesCmd(apiBase *string) *cobra.Command {
	var activityType string
	activities := &cobra.Command{
		Use:   "activities",
		Short: "List activities you can schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			acts, err := newClient(apiBase).Activities(ctx, sess.AccessToken, activityType)
			if err != nil {
				return err
			}
			renderActivities(acts)
			return nil
		},
	}
	activities.Flags().StringVar(&activityType, "type", "", "filter by activity type")

	var (
		in      game.NewActivityInput
		effects []string
	)
	create := &cobra.Command{
		Use:   "create <id> <name>",
		Short: "Create a custom activity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.ID = strings.TrimSpace(args[0])
			in.Name = strings.TrimSpace(args[1])
			if err := game.ValidateActivityID(in.ID); err != nil {
				return err
			}
			parsed, err := parseEffects(effects)
			if err != nil {
				return err
			}
			in.Effects = parsed
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			a, err := newClient(apiBase).CreateActivity(ctx, sess.AccessToken, in)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Created %s (%s, %dh).", a.ID, a.Type, a.DurationHours))
			return nil
		},
	}
	create.Flags().StringVar(&in.Type, "type", "custom", "activity type")
	create.Flags().IntVar(&in.DurationHours, "hours", 1, "default duration in hours")
	create.Flags().StringVar(&in.Description, "description", "", "description")
	create.Flags().StringVar(&in.Color, "color", "", "display color, e.g. #16a34a")
	create.Flags().StringVar(&in.Icon, "icon", "", "icon name")
	create.Flags().StringSliceVar(&effects, "effect", nil, "stat effect as stat=delta, repeatable")

	activities.AddCommand(create)
	return activities
}

func newShopCmd(apiBase *string) *cobra.Command {
	shop := &cobra.Command{
		Use:   "shop",
		Short: "Browse and buy items",
	}

	var category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List shop items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if category != "" {
				if _, err := game.ParseItemCategory(category); err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			items, err := newClient(apiBase).ShopItems(ctx, category)
			if err != nil {
				return err
			}
			renderShop(items)
			return nil
		},
	}
	list.Flags().StringVar(&category, "category", "", "filter by category")

	var (
		buyQty        int64
		paymentMethod string
	)
	buy := &cobra.Command{
		Use:   "buy <item>",
		Short: "Buy an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if buyQty < 1 || buyQty > game.MaxQuantity {
				return fmt.Errorf("quantity must be between 1 and %d", game.MaxQuantity)
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			receipt, err := newClient(apiBase).Purchase(ctx, sess.AccessToken, strings.TrimSpace(args[0]), buyQty, paymentMethod)
			if err != nil {
				return err
			}
			renderReceipt(receipt)
			return nil
		},
	}
	buy.Flags().Int64Var(&buyQty, "qty", 1, "quantity")
	buy.Flags().StringVar(&paymentMethod, "payment-method", "", "card payment method id (checkout link when empty)")

	var useQty int64
	use := &cobra.Command{
		Use:   "use <item>",
		Short: "Use an item from your inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if useQty < 1 || useQty > game.MaxQuantity {
				return fmt.Errorf("quantity must be between 1 and %d", game.MaxQuantity)
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := newClient(apiBase).UseItem(ctx, sess.AccessToken, strings.TrimSpace(args[0]), useQty)
			if err != nil {
				return err
			}
			renderUse(res)
			return nil
		},
	}
	use.Flags().Int64Var(&useQty, "qty", 1, "quantity")

	var page, pageSize int
	inventory := &cobra.Command{
		Use:   "inventory",
		Short: "Show owned items",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			inv, err := newClient(apiBase).Inventory(ctx, sess.AccessToken, page, pageSize)
			if err != nil {
				return err
			}
			renderInventory(inv)
			return nil
		},
	}
	inventory.Flags().IntVar(&page, "page", 1, "page number")
	inventory.Flags().IntVar(&pageSize, "size", 0, "page size (server default when 0)")

	var limit int
	purchases := &cobra.Command{
		Use:   "purchases",
		Short: "Show purchase history",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			recs, err := newClient(apiBase).Purchases(ctx, sess.AccessToken, limit)
			if err != nil {
				return err
			}
			renderPurchases(recs)
			return nil
		},
	}
	purchases.Flags().IntVar(&limit, "limit", 0, "number of records (server default when 0)")

	shop.AddCommand(list, buy, use, inventory, purchases)
	return shop
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay locally queued offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			queue, err := openQueue()
			if err != nil {
				return err
			}
			pending, err := queue.Load()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			sent, failed, err := queue.Drain(ctx, func(ctx context.Context, c syncq.Command) error {
				_, err := client.Do(ctx, c.Method, c.Path, sess.AccessToken, c.Body)
				return err
			})
			if err != nil {
				return err
			}
			for _, c := range pending {
				if ferr, ok := failed[c.ID]; ok {
					printError(fmt.Sprintf("Sync failed for %s %s: %v", c.Method, c.Path, ferr))
				}
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d remaining=%d", sent, len(failed)))
			return nil
		},
	}
}

// queueOnNetworkError keeps a write for later when the API could not be
// reached. Errors the server answered with are returned as-is.
func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil {
		return nil
	}
	if cl.IsAPIError(err) {
		return describeAPIError(err)
	}
	queue, qerr := openQueue()
	if qerr != nil {
		return fmt.Errorf("request failed and could not be queued: %v: %w", qerr, err)
	}
	if _, qerr := queue.Push(cmd); qerr != nil {
		return fmt.Errorf("request failed and could not be queued: %v: %w", qerr, err)
	}
	printWarn(fmt.Sprintf("API unreachable (%v). Queued; run `qg sync` when back online.", err))
	return nil
}

func scheduleFromArgs(day string, args []string) (game.DaySchedule, error) {
	day = strings.TrimSpace(day)
	if day == "" {
		day = time.Now().Format(game.DateLayout)
	}
	if _, err := game.ParseDate(day); err != nil {
		return game.DaySchedule{}, err
	}
	blocks := make([]game.ScheduleBlock, 0, len(args))
	for _, arg := range args {
		b, err := parseBlock(arg)
		if err != nil {
			return game.DaySchedule{}, err
		}
		blocks = append(blocks, b)
	}
	if err := game.ValidateBlocks(blocks); err != nil {
		return game.DaySchedule{}, err
	}
	return game.DaySchedule{Date: day, Blocks: blocks}, nil
}

// parseBlock reads "activity@start+hours"; "+hours" defaults to 1.
func parseBlock(raw string) (game.ScheduleBlock, error) {
	raw = strings.TrimSpace(raw)
	id, rest, ok := strings.Cut(raw, "@")
	if !ok || strings.TrimSpace(id) == "" {
		return game.ScheduleBlock{}, fmt.Errorf("invalid block %q, expected activity@start+hours", raw)
	}
	startRaw, durRaw, hasDur := strings.Cut(rest, "+")
	start, err := strconv.Atoi(strings.TrimSpace(startRaw))
	if err != nil {
		return game.ScheduleBlock{}, fmt.Errorf("invalid start hour in %q", raw)
	}
	dur := 1
	if hasDur {
		dur, err = strconv.Atoi(strings.TrimSpace(durRaw))
		if err != nil {
			return game.ScheduleBlock{}, fmt.Errorf("invalid duration in %q", raw)
		}
	}
	return game.ScheduleBlock{ActivityID: strings.TrimSpace(id), StartHour: start, DurationHours: dur}, nil
}

func parseEffects(raw []string) (map[string]int64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]int64, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid effect %q, expected stat=delta", kv)
		}
		stat, err := game.ParseStat(k)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid effect %q, expected stat=delta", kv)
		}
		out[string(stat)] += n
	}
	return out, nil
}
