package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ganot/promptsync/internal/domain/credit"
	"github.com/spf13/cobra"
)

type balanceView struct {
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
	Stale   bool   `json:"stale,omitempty"`
}

func (v balanceView) String() string {
	if v.Stale {
		return fmt.Sprintf("%s: %d credits (offline, last known)", v.UserID, v.Balance)
	}
	return fmt.Sprintf("%s: %d credits", v.UserID, v.Balance)
}

type transactionView struct {
	Op            string `json:"op"`
	Amount        int64  `json:"amount"`
	Balance       int64  `json:"balance"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func (v transactionView) String() string {
	return fmt.Sprintf("%s %d: balance %d (tx %s)", v.Op, v.Amount, v.Balance, v.TransactionID)
}

type dailyView struct {
	Granted   bool      `json:"granted"`
	Previous  int64     `json:"previous_balance"`
	Balance   int64     `json:"balance"`
	NextGrant time.Time `json:"next_refresh_at"`
}

func (v dailyView) String() string {
	next := "unknown"
	if !v.NextGrant.IsZero() {
		next = v.NextGrant.Local().Format(time.DateTime)
	}
	if v.Granted {
		return fmt.Sprintf("daily credits granted: %d -> %d (next at %s)", v.Previous, v.Balance, next)
	}
	return fmt.Sprintf("already claimed today: balance %d (next at %s)", v.Balance, next)
}

type historyView []credit.Entry

func (v historyView) String() string {
	if len(v) == 0 {
		return "no transactions"
	}
	var b strings.Builder
	for i, e := range v {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s  %-5s %4d  balance %-4d %s",
			e.CreatedAt.Local().Format(time.DateTime), e.Type, e.Amount, e.BalanceAfter, e.Reason)
	}
	return b.String()
}

// NewBalanceCommand creates the balance command.
func NewBalanceCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the current credit balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			bal, err := a.credits.GetBalance(cmd.Context(), a.userID)
			if err != nil {
				return remoteError("balance", err)
			}
			return a.out.Success(balanceView{UserID: a.userID, Balance: bal.Value, Stale: bal.Stale})
		},
	}
}

// NewSpendCommand creates the spend command.
func NewSpendCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "spend [amount]",
		Short: "Spend credits (one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount := int64(0)
			if len(args) == 1 {
				var err error
				if amount, err = parseAmount(args[0]); err != nil {
					return err
				}
			}
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tx, err := a.credits.Spend(cmd.Context(), a.userID, amount, reason)
			if err != nil {
				return remoteError("spend", err)
			}
			if amount == 0 {
				amount = credit.DefaultSpendAmount
			}
			if !tx.Success {
				return a.out.Failure(tx.Error, balanceView{UserID: a.userID, Balance: tx.NewBalance})
			}
			return a.out.Success(transactionView{Op: "spend", Amount: amount, Balance: tx.NewBalance, TransactionID: tx.TransactionID})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "enhance", "reason recorded in history")
	return cmd
}

// NewEarnCommand creates the earn command.
func NewEarnCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "earn <amount>",
		Short: "Add credits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tx, err := a.credits.Earn(cmd.Context(), a.userID, amount, reason)
			if err != nil {
				return remoteError("earn", err)
			}
			return a.out.Success(transactionView{Op: "earn", Amount: amount, Balance: tx.NewBalance, TransactionID: tx.TransactionID})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "manual", "reason recorded in history")
	return cmd
}

// NewDailyCommand creates the daily command.
func NewDailyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "daily",
		Short: "Claim the daily credit grant if it is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.credits.CheckAndRefreshDaily(cmd.Context(), a.userID)
			if err != nil {
				return remoteError("daily refresh", err)
			}
			return a.out.Success(dailyView{
				Granted:   res.WasRefreshed,
				Previous:  res.PreviousBalance,
				Balance:   res.NewBalance,
				NextGrant: res.NextRefreshAt,
			})
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent credit transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.ledger.ListTransactions(cmd.Context(), a.userID, limit)
			if err != nil {
				return remoteError("history", err)
			}
			return a.out.Success(historyView(entries))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of transactions")
	return cmd
}

// NewWatchCommand creates the watch command. It prints balance updates until
// interrupted.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream balance updates",
		Long:  "Stream balance updates until interrupted. Uses the server push channel when remote.push is set, otherwise polls every credits.poll_interval.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if bal, err := a.credits.GetBalance(ctx, a.userID); err == nil {
				if err := a.out.Success(balanceView{UserID: a.userID, Balance: bal.Value, Stale: bal.Stale}); err != nil {
					return err
				}
			}

			updates := make(chan int64, 16)
			unsubscribe, err := a.credits.Subscribe(a.userID, func(b int64) {
				select {
				case updates <- b:
				default:
				}
			})
			if err != nil {
				return remoteError("watch", err)
			}
			defer unsubscribe()

			for {
				select {
				case <-ctx.Done():
					return nil
				case b := <-updates:
					if err := a.out.Success(balanceView{UserID: a.userID, Balance: b}); err != nil {
						return err
					}
				}
			}
		},
	}
}

func parseAmount(raw string) (int64, error) {
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err == nil && amount <= 0 {
		err = errors.New("must be positive")
	}
	if err != nil {
		return 0, WrapExitError(ExitCommandError, fmt.Sprintf("invalid amount %q", raw), err)
	}
	return amount, nil
}
