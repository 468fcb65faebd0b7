package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ─── user / friends / request commands ─────────────────────────────────────

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().String("name", "", "Display name")
	userAddCmd.Flags().String("password", "", "Password (min 6 characters)")

	rootCmd.AddCommand(friendsCmd)
	friendsCmd.AddCommand(friendsAddCmd)

	rootCmd.AddCommand(requestCmd)
	requestCmd.AddCommand(requestListCmd)
	requestCmd.AddCommand(requestAcceptCmd)
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local user accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add EMAIL",
	Short: "Register a user with email and password",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	d, err := openDaemon()
	if err != nil {
		return err
	}
	defer d.Close()

	name, _ := cmd.Flags().GetString("name")
	password, _ := cmd.Flags().GetString("password")
	sess, err := d.Accounts.SignUp(cmd.Context(), args[0], password, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Registered %s (%s)\n", sess.Identity.Email, sess.Identity.UID)
	return nil
}

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "List your friends",
	Args:  cobra.NoArgs,
	RunE:  runFriends,
}

func runFriends(cmd *cobra.Command, args []string) error {
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
	list, err := d.Friends.ListFriends(ctx, me.UID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No friends yet.")
		fmt.Fprintln(out, "Use 'splitpal friends add <email>' to send a request.")
		return nil
	}
	fmt.Fprintf(out, "Friends (%d):\n", len(list))
	for _, p := range list {
		fmt.Fprintf(out, "  • %s <%s>\n", p.Name(), p.Email)
	}
	return nil
}

var friendsAddCmd = &cobra.Command{
	Use:   "add EMAIL",
	Short: "Send a friend request by email",
	Args:  cobra.ExactArgs(1),
	RunE:  runFriendsAdd,
}

func runFriendsAdd(cmd *cobra.Command, args []string) error {
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
	res, err := d.Friends.AddFriendByEmail(ctx, me, args[0])
	if err != nil {
		return err
	}
	if res.AlreadyFriends {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already your friend.\n", res.Profile.Name())
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Friend request sent to %s\n", res.Profile.Name())
	return nil
}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Manage friend requests",
}

var requestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List incoming and sent friend requests",
	RunE:  runRequestList,
}

func runRequestList(cmd *cobra.Command, args []string) error {
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
	incoming, err := d.Friends.IncomingRequests(ctx, me.UID)
	if err != nil {
		return err
	}
	sent, err := d.Friends.SentRequests(ctx, me.UID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Incoming (%d):\n", len(incoming))
	for _, r := range incoming {
		fmt.Fprintf(out, "  %s  from %s <%s>\n", r.ID, r.SenderName, r.SenderEmail)
	}
	fmt.Fprintf(out, "Sent (%d):\n", len(sent))
	for _, r := range sent {
		fmt.Fprintf(out, "  %s  to %s\n", r.ID, nameOf(ctx, d, r.To))
	}
	return nil
}

var requestAcceptCmd = &cobra.Command{
	Use:   "accept REQUEST_ID",
	Short: "Accept an incoming friend request",
	Args:  cobra.ExactArgs(1),
	RunE:  runRequestAccept,
}

func runRequestAccept(cmd *cobra.Command, args []string) error {
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
	req, err := d.Friends.GetRequest(ctx, args[0])
	if err != nil {
		return err
	}
	if req.To != me.UID {
		return fmt.Errorf("request %s is not addressed to %s", req.ID, me.Email)
	}
	if err := d.Friends.AcceptRequest(ctx, req.ID, req.From, req.To); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ You and %s are now friends\n", req.SenderName)
	return nil
}
