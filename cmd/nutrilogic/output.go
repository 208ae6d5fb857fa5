package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/nutrilogic/datacache"
	"github.com/nutrilogic/datacache/internal/api"
	"github.com/nutrilogic/datacache/keys"
)

func source(fromCache bool) string {
	if fromCache {
		return "(cache)"
	}
	return "(network)"
}

func printChildren(w io.Writer, children []api.Child, fromCache bool) {
	if len(children) == 0 {
		fmt.Fprintf(w, "No children found %s\n", source(fromCache))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGENDER\tBORN\tWEIGHT\tHEIGHT\tSTATUS\tACTIVE")
	for _, c := range children {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%.1fkg\t%.1fcm\t%s\t%t\n",
			c.ID, c.Name, c.Gender, c.BirthDate, c.WeightKg, c.HeightCm, c.NutritionStatus, c.IsActive)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d children %s\n", len(children), source(fromCache))
}

func printChild(w io.Writer, c api.Child, fromCache bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%d\n", c.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", c.Name)
	fmt.Fprintf(tw, "Gender:\t%s\n", c.Gender)
	fmt.Fprintf(tw, "Born:\t%s\n", c.BirthDate)
	fmt.Fprintf(tw, "Parent:\t%d\n", c.ParentID)
	fmt.Fprintf(tw, "Weight:\t%.1fkg\n", c.WeightKg)
	fmt.Fprintf(tw, "Height:\t%.1fcm\n", c.HeightCm)
	fmt.Fprintf(tw, "Status:\t%s\n", c.NutritionStatus)
	fmt.Fprintf(tw, "Active:\t%t\n", c.IsActive)
	tw.Flush()
	fmt.Fprintln(w, source(fromCache))
}

func printDashboard(w io.Writer, d api.DashboardSummary, fromCache bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total children:\t%d\n", d.TotalChildren)
	fmt.Fprintf(tw, "Active children:\t%d\n", d.ActiveChildren)
	fmt.Fprintf(tw, "Need follow-up:\t%d\n", d.PriorityCount)
	statuses := make([]string, 0, len(d.ByStatus))
	for s := range d.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(tw, "  %s:\t%d\n", s, d.ByStatus[s])
	}
	tw.Flush()
	fmt.Fprintln(w, source(fromCache))
}

func printStats(w io.Writer, stats datacache.Stats, entries int) {
	names := make([]string, 0, len(stats.Counters))
	for name := range stats.Counters {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Entries:\t%d\n", entries)
	for _, name := range names {
		fmt.Fprintf(tw, "%s:\t%d\n", name, stats.Counters[name])
	}
	tw.Flush()
}

// splitArgs splits a command line on spaces, keeping double-quoted runs together.
func splitArgs(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inQuote, started := false, false
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			started = true
		case (r == ' ' || r == '\t') && !inQuote:
			if started {
				args = append(args, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in %q", line)
	}
	if started {
		args = append(args, cur.String())
	}
	return args, nil
}

// parseFields reads key=value arguments.
func parseFields(args []string) (map[string]string, error) {
	fields := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		fields[strings.ToLower(k)] = v
	}
	return fields, nil
}

func parseFilter(fields map[string]string) (keys.ChildFilter, error) {
	var f keys.ChildFilter
	for k, v := range fields {
		switch k {
		case "status":
			f.Status = v
		case "search":
			f.Search = v
		case "active":
			switch strings.ToLower(v) {
			case "1", "true", "yes":
				f.Active = keys.Bool(true)
			case "0", "false", "no":
				f.Active = keys.Bool(false)
			case "all", "":
			default:
				return f, fmt.Errorf("active must be 1, 0 or all, got %q", v)
			}
		default:
			return f, fmt.Errorf("unknown filter %q", k)
		}
	}
	return f, nil
}

func parseChildInput(fields map[string]string) (api.ChildInput, error) {
	var in api.ChildInput
	for k, v := range fields {
		switch k {
		case "name":
			in.Name = &v
		case "gender":
			in.Gender = &v
		case "birth", "birth_date":
			in.BirthDate = &v
		case "status":
			in.NutritionStatus = &v
		case "parent", "parent_id":
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return in, fmt.Errorf("parent: %w", err)
			}
			in.ParentID = &id
		case "weight":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return in, fmt.Errorf("weight: %w", err)
			}
			in.WeightKg = &f
		case "height":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return in, fmt.Errorf("height: %w", err)
			}
			in.HeightCm = &f
		case "active":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return in, fmt.Errorf("active: %w", err)
			}
			in.IsActive = &b
		default:
			return in, fmt.Errorf("unknown field %q", k)
		}
	}
	return in, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid child id %q", s)
	}
	return id, nil
}
