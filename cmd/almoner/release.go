// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/blinklabs-io/almoner"
	"github.com/blinklabs-io/almoner/internal/config"
	"github.com/blinklabs-io/almoner/internal/node"
	"github.com/spf13/cobra"
)

var releaseFlags = struct {
	txHash     string
	caller     string
	campaignID uint64
	milestone  uint8
}{}

var statusFlags = struct {
	campaignID uint64
}{}

// withEngine runs fn against a started engine with the ledger watcher
// disabled, so one-shot commands do not race a running server's cursor
func withEngine(
	cfg *config.Config,
	logger *slog.Logger,
	fn func(context.Context, *almoner.Engine) error,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	e, err := node.NewEngine(cfg, logger, nil, almoner.WithWatcher(false))
	if err != nil {
		return err
	}
	if err := e.Start(ctx); err != nil {
		return errors.Join(err, e.Stop())
	}
	return errors.Join(fn(ctx, e), e.Stop())
}

func releaseRun(cfg *config.Config) error {
	logger := commonRun()
	return withEngine(cfg, logger, func(ctx context.Context, e *almoner.Engine) error {
		receipt, err := e.MarkReleased(
			ctx,
			releaseFlags.campaignID,
			releaseFlags.milestone,
			releaseFlags.txHash,
			releaseFlags.caller,
		)
		if err != nil {
			return err
		}
		w := receipt.Withdrawal
		logger.Info(
			"milestone marked released",
			"component", programName,
			"campaign_id", w.CampaignID,
			"milestone", w.MilestoneIdx,
			"amount", w.Amount.String(),
			"tx_hash", w.TxHash,
			"idempotent", receipt.Idempotent,
			"current_phase", receipt.CurrentPhase,
		)
		return nil
	})
}

func releaseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Record a ledger withdrawal that was never confirmed",
		Run: func(cmd *cobra.Command, args []string) {
			if err := releaseRun(configFromCommand(cmd)); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	cmd.Flags().Uint64Var(&releaseFlags.campaignID, "campaign", 0, "campaign ID")
	cmd.Flags().Uint8Var(&releaseFlags.milestone, "milestone", 0, "milestone index")
	cmd.Flags().StringVar(&releaseFlags.txHash, "tx", "", "withdrawal transaction hash")
	cmd.Flags().StringVar(&releaseFlags.caller, "caller", "", "operator address recording the release")
	_ = cmd.MarkFlagRequired("campaign")
	_ = cmd.MarkFlagRequired("tx")
	_ = cmd.MarkFlagRequired("caller")
	return cmd
}

func statusRun(cfg *config.Config) error {
	logger := commonRun()
	return withEngine(cfg, logger, func(ctx context.Context, e *almoner.Engine) error {
		state, err := e.Campaign(ctx, statusFlags.campaignID)
		if err != nil {
			return err
		}
		milestones, err := e.Milestones(ctx, statusFlags.campaignID)
		if err != nil {
			return err
		}
		fmt.Printf(
			"campaign %d: %s, balance %s of %s (%d%%)\n",
			state.Campaign.CampaignID,
			state.Status,
			state.EffectiveBalance,
			state.Campaign.Goal,
			state.Progress,
		)
		for _, m := range milestones {
			line := fmt.Sprintf(
				"  milestone %d (%d%%): %s",
				m.Milestone.Idx,
				m.Milestone.Percentage,
				m.Milestone.Amount,
			)
			switch {
			case m.Milestone.IsReleased:
				line += " released in " + m.Milestone.ReleaseTxHash
			case m.Available:
				line += " available"
			case m.Reason != nil:
				line += " blocked: " + m.Reason.Error()
			}
			fmt.Println(line)
		}
		return nil
	})
}

func statusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show reconciled campaign state and milestone availability",
		Run: func(cmd *cobra.Command, args []string) {
			if err := statusRun(configFromCommand(cmd)); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
		},
	}
	cmd.Flags().Uint64Var(&statusFlags.campaignID, "campaign", 0, "campaign ID")
	_ = cmd.MarkFlagRequired("campaign")
	return cmd
}
