package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	cl "github.com/Zubariev/quarantine/internal/cli"
	"github.com/Zubariev/quarantine/internal/game"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"golang.org/x/term"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

var (
	cMuted = lipgloss.Color("244")
	cFree  = lipgloss.Color("238")

	panel     = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(cMuted).Padding(0, 1)
	hourStyle = lipgloss.NewStyle().Foreground(cMuted).Width(6)
	freeStyle = lipgloss.NewStyle().Foreground(cFree)
	title     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Fprintln(os.Stderr, msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

// promptPassword reads without echo on a terminal and falls back to a plain
// line read when stdin is piped.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptRequired(label)
	}
	for {
		fmt.Printf("%s: ", label)
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		if text := strings.TrimSpace(string(raw)); text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func describeAPIError(err error) error {
	var apiErr *cl.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Hour != nil:
		return fmt.Errorf("%s (hour %02d:00 is double-booked)", apiErr.Message, *apiErr.Hour)
	case len(apiErr.Missing) > 0:
		return fmt.Errorf("%s: %s", apiErr.Message, strings.Join(apiErr.Missing, ", "))
	}
	return err
}

func renderStats(s game.Stats) {
	accent.Println("Stats")
	for _, stat := range game.AllStats {
		v := s.Get(stat)
		if stat == game.StatMoney {
			fmt.Printf("  %-7s %s\n", stat, neutral.Sprint(formatCoins(v)))
			continue
		}
		fmt.Printf("  %-7s %s %3d\n", stat, bar(stat, v), v)
	}
}

// bar draws a 20-cell gauge. High stress is bad, so its colours run the
// other way.
func bar(stat game.Stat, v int64) string {
	filled := int(v / 5)
	if filled > 20 {
		filled = 20
	}
	if filled < 0 {
		filled = 0
	}
	text := strings.Repeat("█", filled) + strings.Repeat("░", 20-filled)
	good := v >= 50
	if stat == game.StatStress {
		good = v < 50
	}
	if good {
		return success.Sprint(text)
	}
	return danger.Sprint(text)
}

func renderHistory(entries []game.StatHistoryEntry) {
	if len(entries) == 0 {
		printInfo("No stat changes yet.")
		return
	}
	accent.Println("Recent changes")
	for _, e := range entries {
		fmt.Printf("  %s  %-7s %4d -> %-4d %s  %s\n",
			e.CreatedAt.Local().Format("Jan 02 15:04"),
			e.Stat, e.PreviousValue, e.NewValue, colorizeDelta(e.Delta), truncate(e.Reason, 40))
	}
}

func renderSchedule(sched game.DaySchedule, acts []game.Activity) {
	fmt.Println(title.Render("Schedule for " + sched.Date))
	fmt.Println(panel.Render(timeline(sched.Blocks, acts)))
}

// timeline renders one row per hour with the block covering it.
func timeline(blocks []game.ScheduleBlock, acts []game.Activity) string {
	byID := make(map[string]game.Activity, len(acts))
	for _, a := range acts {
		byID[a.ID] = a
	}
	var slots [game.HoursPerDay]*game.ScheduleBlock
	for i := range blocks {
		b := &blocks[i]
		for h := b.StartHour; h < b.EndHour() && h < game.HoursPerDay; h++ {
			if h >= 0 && slots[h] == nil {
				slots[h] = b
			}
		}
	}
	rows := make([]string, 0, game.HoursPerDay)
	for h := 0; h < game.HoursPerDay; h++ {
		label := hourStyle.Render(fmt.Sprintf("%02d:00", h))
		b := slots[h]
		if b == nil {
			rows = append(rows, label+freeStyle.Render("·"))
			continue
		}
		name := b.ActivityID
		style := lipgloss.NewStyle().Bold(true)
		if a, ok := byID[b.ActivityID]; ok {
			name = a.Name
			if a.Color != "" {
				style = style.Foreground(lipgloss.Color(a.Color))
			}
		}
		text := "│ " + name
		if h == b.StartHour {
			text = fmt.Sprintf("┌ %s (%dh)", name, b.DurationHours)
		}
		rows = append(rows, label+style.Render(text))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderScheduleRange(days []game.DaySchedule) {
	if len(days) == 0 {
		printInfo("No days in range.")
		return
	}
	for _, d := range days {
		if len(d.Blocks) == 0 {
			fmt.Printf("  %s  %s\n", d.Date, freeStyle.Render("(empty)"))
			continue
		}
		parts := make([]string, 0, len(d.Blocks))
		for _, b := range d.Blocks {
			parts = append(parts, fmt.Sprintf("%s@%d+%d", b.ActivityID, b.StartHour, b.DurationHours))
		}
		fmt.Printf("  %s  %s\n", d.Date, strings.Join(parts, " "))
	}
}

func renderActivities(acts []game.Activity) {
	if len(acts) == 0 {
		printInfo("No activities found.")
		return
	}
	accent.Println("Activities")
	for _, a := range acts {
		fmt.Printf("  %-24s %-9s %2dh  %s\n", a.ID, a.Type, a.DurationHours, formatEffects(a.Effects))
	}
}

func renderShop(items []game.ShopItem) {
	if len(items) == 0 {
		printInfo("The shop is empty.")
		return
	}
	accent.Println("Shop")
	for _, it := range items {
		uses := ""
		if it.IsLimitedUse() {
			uses = fmt.Sprintf(" (%d uses)", *it.LimitedUse)
		}
		fmt.Printf("  %-22s %-13s %12s  %s%s\n",
			it.ID, it.Category, formatPrice(it.PurchaseType, it.Price), formatEffects(it.Effects), uses)
	}
}

func renderReceipt(r game.PurchaseReceipt) {
	switch {
	case r.CheckoutURL != "":
		printSuccess(r.Message)
		fmt.Printf("  Complete payment at: %s\n", accent.Sprint(r.CheckoutURL))
	case r.Status != "" && r.Status != "succeeded":
		printWarn(fmt.Sprintf("%s (status %s)", r.Message, r.Status))
	default:
		printSuccess(r.Message)
	}
	fmt.Printf("  %s x%d for %s\n", r.ItemID, r.Quantity, formatPrice(game.PurchaseType(r.PurchaseType), r.TotalCost))
	if r.Money != nil {
		fmt.Printf("  Money left: %s\n", formatCoins(*r.Money))
	}
}

func renderUse(r game.UseResult) {
	printSuccess(r.Message)
	if len(r.Effects) > 0 {
		fmt.Printf("  Effects: %s\n", formatEffects(r.Effects))
	}
	fmt.Printf("  Remaining: %d", r.RemainingQuantity)
	if r.UsesRemaining != nil {
		fmt.Printf(" (%d uses)", *r.UsesRemaining)
	}
	fmt.Println()
}

func renderInventory(inv []game.InventoryView) {
	if len(inv) == 0 {
		printInfo("Inventory is empty.")
		return
	}
	accent.Println("Inventory")
	for _, e := range inv {
		uses := ""
		if e.UsesRemaining != nil {
			uses = fmt.Sprintf(" uses=%d", *e.UsesRemaining)
		}
		usable := ""
		if e.Item.Usable {
			usable = success.Sprint(" usable")
		}
		fmt.Printf("  %-22s x%-4d%s%s\n", e.ItemID, e.Quantity, uses, usable)
	}
}

func renderPurchases(recs []game.PurchaseRecord) {
	if len(recs) == 0 {
		printInfo("No purchases yet.")
		return
	}
	accent.Println("Purchases")
	for _, p := range recs {
		fmt.Printf("  %s  %-22s x%-4d %12s\n",
			p.PurchasedAt.Local().Format("Jan 02 15:04"), p.ItemID, p.Quantity, formatPrice(p.PurchaseType, p.TotalCost))
	}
}

// formatPrice shows in-game prices as coins and real-money prices from
// their minor units.
func formatPrice(kind game.PurchaseType, amount int64) string {
	if kind == game.PurchaseRealMoney {
		return "$" + decimal.New(amount, -2).StringFixed(2)
	}
	return formatCoins(amount)
}

func formatCoins(v int64) string {
	return comma(v) + " coins"
}

func formatEffects(e game.Effects) string {
	if len(e) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+colorizeDelta(e[game.Stat(k)]))
	}
	return strings.Join(parts, ", ")
}

func colorizeDelta(v int64) string {
	text := strconv.FormatInt(v, 10)
	switch {
	case v > 0:
		return success.Sprint("+" + text)
	case v < 0:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
