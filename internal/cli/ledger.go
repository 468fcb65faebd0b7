package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/splitpal/splitpal/internal/app/ledger"
	"github.com/splitpal/splitpal/internal/app/transactions"
	"github.com/splitpal/splitpal/internal/daemon"
	"github.com/splitpal/splitpal/internal/domain"
)

// ─── balance / tx commands ─────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(balanceCmd)

	rootCmd.AddCommand(txCmd)
	txCmd.AddCommand(txAddCmd)
	txCmd.AddCommand(txEditCmd)
	txCmd.AddCommand(txListCmd)

	txAddCmd.Flags().String("type", string(domain.TxLend), "lend, borrow or repay")
	txEditCmd.Flags().String("type", "", "lend, borrow or repay (default: keep the current type)")
	for _, c := range []*cobra.Command{txAddCmd, txEditCmd} {
		c.Flags().StringP("message", "m", "", "Description")
	}
	txListCmd.Flags().String("friend", "", "Only transactions with this friend (email)")
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show what each friend owes you",
	Args:  cobra.NoArgs,
	RunE:  runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()
	ctx := cmd.Context()

	me, err := currentUser(ctx, d)
	if err != nil {
		return err
	}
	txs, err := d.Transactions.ListForUser(ctx, me.UID)
	if err != nil {
		return err
	}
	sum := ledger.Compute(txs, me.UID)
	cur := d.Config.Display.Currency

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, id := range sum.Counterparties() {
		bal := sum.Balance(id)
		switch {
		case bal.IsPositive():
			fmt.Fprintf(tw, "  %s\towes you\t%s %s\n", nameOf(ctx, d, id), cur, bal.StringFixed(2))
		case bal.IsNegative():
			fmt.Fprintf(tw, "  %s\tyou owe\t%s %s\n", nameOf(ctx, d, id), cur, bal.Neg().StringFixed(2))
		default:
			fmt.Fprintf(tw, "  %s\tsettled up\t\n", nameOf(ctx, d, id))
		}
	}
	tw.Flush()
	fmt.Fprintf(out, "To receive: %s %s\n", cur, sum.TotalToReceive.StringFixed(2))
	fmt.Fprintf(out, "To pay:     %s %s\n", cur, sum.TotalToPay.StringFixed(2))
	return nil
}

var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Record and edit transactions",
}

var txAddCmd = &cobra.Command{
	Use:   "add FRIEND_EMAIL AMOUNT",
	Short: "Record a transaction with a friend",
	Long: `Record a transaction from your point of view:
  lend    you gave the friend money
  borrow  the friend gave you money
  repay   you paid back money you owed`,
	Args: cobra.ExactArgs(2),
	RunE: runTxAdd,
}

func runTxAdd(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()
	ctx := cmd.Context()

	me, err := currentUser(ctx, d)
	if err != nil {
		return err
	}
	typ, _ := cmd.Flags().GetString("type")
	draft, err := draftFromArgs(cmd, d, me, args[0], args[1], domain.TxType(typ))
	if err != nil {
		return err
	}
	tx, err := d.Transactions.Create(ctx, draft)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Recorded %s %s %s (%s)\n", tx.Type, d.Config.Display.Currency, tx.Amount.StringFixed(2), tx.ID)
	return nil
}

var txEditCmd = &cobra.Command{
	Use:   "edit TX_ID FRIEND_EMAIL AMOUNT",
	Short: "Overwrite a transaction you are part of",
	Args:  cobra.ExactArgs(3),
	RunE:  runTxEdit,
}

func runTxEdit(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()
	ctx := cmd.Context()

	me, err := currentUser(ctx, d)
	if err != nil {
		return err
	}
	typ, _ := cmd.Flags().GetString("type")
	if typ == "" {
		current, err := d.Transactions.Get(ctx, args[0])
		if err != nil {
			return err
		}
		typ = string(current.Type)
	}
	draft, err := draftFromArgs(cmd, d, me, args[1], args[2], domain.TxType(typ))
	if err != nil {
		return err
	}
	tx, err := d.Transactions.Update(ctx, args[0], draft, me.UID, me.Name())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Updated %s: %s %s %s\n", tx.ID, tx.Type, d.Config.Display.Currency, tx.Amount.StringFixed(2))
	return nil
}

// draftFromArgs orients a draft from the caller's point of view.
func draftFromArgs(cmd *cobra.Command, d *daemon.Daemon, me domain.Profile, friendEmail, amount string, t domain.TxType) (transactions.Draft, error) {
	friend, err := userByEmail(cmd.Context(), d, friendEmail)
	if err != nil {
		return transactions.Draft{}, err
	}
	amt, err := domain.ParseAmountStrict(amount)
	if err != nil {
		return transactions.Draft{}, err
	}
	desc, _ := cmd.Flags().GetString("message")

	from, to := domain.Orient(me.UID, friend.UID, t)
	return transactions.Draft{From: from, To: to, Amount: amt, Description: desc, Type: t}, nil
}

var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your transactions, newest first",
	RunE:  runTxList,
}

func runTxList(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()
	ctx := cmd.Context()

	me, err := currentUser(ctx, d)
	if err != nil {
		return err
	}

	var txs []domain.Transaction
	if email, _ := cmd.Flags().GetString("friend"); email != "" {
		friend, err := userByEmail(ctx, d, email)
		if err != nil {
			return err
		}
		txs, err = d.Transactions.ListWithFriend(ctx, me.UID, friend.UID)
		if err != nil {
			return err
		}
	} else if txs, err = d.Transactions.ListForUser(ctx, me.UID); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(txs) == 0 {
		fmt.Fprintln(out, "No transactions.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tFROM\tTO\tTYPE\tAMOUNT\tDESCRIPTION")
	for _, tx := range txs {
		desc := tx.Description
		if tx.Edit != nil {
			desc += fmt.Sprintf(" (edited by %s)", tx.Edit.EditorName)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Timestamp.Local().Format("2006-01-02"),
			nameOf(ctx, d, tx.From), nameOf(ctx, d, tx.To),
			tx.Type, tx.Amount.StringFixed(2), desc)
	}
	return tw.Flush()
}
