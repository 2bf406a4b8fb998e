// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorse-io/insight/base/log"
	"github.com/gorse-io/insight/base/task"
	"github.com/gorse-io/insight/server"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	cliCommand.AddCommand(statusCommand)
	cliCommand.AddCommand(recomputeCommand)
	recomputeCommand.Flags().Bool("force", false, "recompute fresh entities")
	recomputeCommand.Flags().Bool("wait", true, "wait until the recompute pass completes")
	recomputeCommand.Flags().Duration("poll-interval", time.Second, "interval of polling progress")
	recomputeCommand.Flags().Duration("timeout", 30*time.Minute, "timeout of waiting")
}

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Check the status of insight engine",
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		var status server.Status
		if err := client.do(http.MethodGet, "/api/status", &status); err != nil {
			log.Logger().Fatal("failed to get status", zap.Error(err))
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("status", "value")
		snapshotTime := "none"
		if status.SnapshotTime != nil {
			snapshotTime = status.SnapshotTime.Format(time.RFC3339)
		}
		lo.Must0(table.Bulk([][]string{
			{"version", status.Version.Version},
			{"users", strconv.FormatInt(status.Users, 10)},
			{"products", strconv.FormatInt(status.Products, 10)},
			{"reviews", strconv.FormatInt(status.Reviews, 10)},
			{"interactions", strconv.FormatInt(status.Interactions, 10)},
			{"snapshot time", snapshotTime},
			{"last fit factor models", formatTime(status.LastFitFactorModelsTime)},
			{"last update sentiment", formatTime(status.LastUpdateSentimentTime)},
		}))
		lo.Must0(table.Render())

		var tasks []task.Task
		if err := client.do(http.MethodGet, "/api/tasks", &tasks); err != nil {
			log.Logger().Fatal("failed to get tasks", zap.Error(err))
		}
		renderTasks(tasks)
	},
}

var recomputeCommand = &cobra.Command{
	Use:   "recompute",
	Short: "Schedule a recompute pass",
	Run: func(cmd *cobra.Command, args []string) {
		client := newClient(cmd)
		force, _ := cmd.Flags().GetBool("force")
		wait, _ := cmd.Flags().GetBool("wait")
		interval, _ := cmd.Flags().GetDuration("poll-interval")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		since := time.Now()
		var success server.Success
		if err := client.do(http.MethodPost, fmt.Sprintf("/api/recompute?force=%t", force), &success); err != nil {
			log.Logger().Fatal("failed to schedule recompute", zap.Error(err))
		}
		fmt.Println("recompute scheduled")
		if !wait {
			return
		}
		tasks, err := waitTasks(client, since, interval, timeout)
		if err != nil {
			log.Logger().Fatal("failed to wait recompute", zap.Error(err))
		}
		renderTasks(tasks)
	},
}

// waitTasks polls progress until a pass started after since finishes. A pass
// is not started by a non-forced request if nothing changed, so waiting is
// bounded by timeout.
func waitTasks(client *Client, since time.Time, interval, timeout time.Duration) ([]task.Task, error) {
	bar := progressbar.Default(-1, "recompute")
	started := false
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var tasks []task.Task
		if err := client.do(http.MethodGet, "/api/tasks", &tasks); err != nil {
			return nil, err
		}
		finished := lo.CountBy(tasks, func(t task.Task) bool {
			return t.Status == task.StatusComplete || t.Status == task.StatusFailed
		})
		running, ok := lo.Find(tasks, func(t task.Task) bool { return t.Status == task.StatusRunning })
		if ok || finished < len(tasks) || lo.SomeBy(tasks, func(t task.Task) bool { return t.StartTime.After(since) }) {
			started = true
		}
		if ok {
			bar.Describe(running.Name)
			if bar.GetMax() != len(tasks) {
				bar.ChangeMax(len(tasks))
			}
			_ = bar.Set(finished)
		}
		if started && len(tasks) > 0 && finished == len(tasks) {
			_ = bar.Finish()
			return tasks, nil
		}
		time.Sleep(interval)
	}
	return nil, errors.Timeoutf("recompute after %v", timeout)
}

func renderTasks(tasks []task.Task) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("task", "status", "done", "skipped", "failed", "total", "elapsed", "error")
	for _, t := range tasks {
		elapsed := ""
		if !t.FinishTime.IsZero() {
			elapsed = t.FinishTime.Sub(t.StartTime).Round(time.Millisecond).String()
		}
		lo.Must0(table.Append([]string{
			t.Name,
			string(t.Status),
			strconv.Itoa(t.Done),
			strconv.Itoa(t.Skipped),
			strconv.Itoa(t.Failed),
			strconv.Itoa(t.Total),
			elapsed,
			t.Error,
		}))
	}
	lo.Must0(table.Render())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
