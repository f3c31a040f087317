package cli

import (
	"fmt"
	"time"

	"github.com/ganot/promptsync/internal/docsync"
	"github.com/spf13/cobra"
)

type draftView struct {
	Content     string    `json:"content"`
	Mode        string    `json:"mode"`
	LastUpdated time.Time `json:"last_updated"`
}

func (v draftView) String() string {
	return fmt.Sprintf("[%s] %s\n%s", v.Mode, v.LastUpdated.Local().Format(time.DateTime), v.Content)
}

type sessionView struct {
	LastMode         string    `json:"last_mode"`
	SidebarCollapsed bool      `json:"sidebar_collapsed"`
	LastActive       time.Time `json:"last_active"`
}

func (v sessionView) String() string {
	return fmt.Sprintf("mode %s, sidebar collapsed %t (active %s)",
		v.LastMode, v.SidebarCollapsed, v.LastActive.Local().Format(time.DateTime))
}

// NewDraftCommand creates the draft command group.
func NewDraftCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "draft",
		Short: "Save or show the editor draft",
	}

	var mode string
	save := &cobra.Command{
		Use:   "save <content>",
		Short: "Save the draft locally and push it to the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			syncer, err := a.draftSyncer()
			if err != nil {
				return WrapExitError(ExitCommandError, "draft", err)
			}
			defer syncer.Cleanup()

			syncer.Save(docsync.Draft{Content: args[0], Mode: mode})
			if err := syncer.Flush(cmd.Context()); err != nil {
				// The draft is safe in the local cache; the next load pushes it.
				a.logger.Warn("draft saved locally only", "error", err)
			}
			doc, ok := syncer.Local()
			if !ok {
				return NewExitError(ExitCommandError, "draft could not be written to the local cache")
			}
			return a.out.Success(draftView{Content: doc.Payload.Content, Mode: doc.Payload.Mode, LastUpdated: doc.LastUpdatedAt})
		},
	}
	save.Flags().StringVarP(&mode, "mode", "m", "enhance", "editor mode")

	show := &cobra.Command{
		Use:   "show",
		Short: "Reconcile and show the draft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			syncer, err := a.draftSyncer()
			if err != nil {
				return WrapExitError(ExitCommandError, "draft", err)
			}
			defer syncer.Cleanup()

			doc := syncer.Load(cmd.Context())
			if err := syncer.Flush(cmd.Context()); err != nil {
				a.logger.Warn("draft push failed", "error", err)
			}
			if doc == nil {
				return a.out.Success("no draft")
			}
			return a.out.Success(draftView{Content: doc.Payload.Content, Mode: doc.Payload.Mode, LastUpdated: doc.LastUpdatedAt})
		},
	}

	cmd.AddCommand(save, show)
	return cmd
}

// NewSessionCommand creates the session command group.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Update or show UI session preferences",
	}

	var (
		mode      string
		collapsed bool
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Record session preferences and push them to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			syncer, err := a.sessionSyncer()
			if err != nil {
				return WrapExitError(ExitCommandError, "session", err)
			}
			defer syncer.Cleanup()

			next := docsync.Session{LastMode: mode, SidebarCollapsed: collapsed}
			if cur, ok := syncer.Local(); ok {
				next.Preferences = cur.Payload.Preferences
				if !cmd.Flags().Changed("mode") {
					next.LastMode = cur.Payload.LastMode
				}
				if !cmd.Flags().Changed("sidebar-collapsed") {
					next.SidebarCollapsed = cur.Payload.SidebarCollapsed
				}
			}
			syncer.Save(next)
			if err := syncer.Flush(cmd.Context()); err != nil {
				a.logger.Warn("session saved locally only", "error", err)
			}
			doc, ok := syncer.Local()
			if !ok {
				return NewExitError(ExitCommandError, "session could not be written to the local cache")
			}
			return a.out.Success(sessionView{LastMode: doc.Payload.LastMode, SidebarCollapsed: doc.Payload.SidebarCollapsed, LastActive: doc.LastUpdatedAt})
		},
	}
	set.Flags().StringVarP(&mode, "mode", "m", "enhance", "last used mode")
	set.Flags().BoolVar(&collapsed, "sidebar-collapsed", false, "sidebar collapsed")

	show := &cobra.Command{
		Use:   "show",
		Short: "Reconcile and show session preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			syncer, err := a.sessionSyncer()
			if err != nil {
				return WrapExitError(ExitCommandError, "session", err)
			}
			defer syncer.Cleanup()

			doc := syncer.Load(cmd.Context())
			if err := syncer.Flush(cmd.Context()); err != nil {
				a.logger.Warn("session push failed", "error", err)
			}
			if doc == nil {
				return a.out.Success("no session")
			}
			return a.out.Success(sessionView{LastMode: doc.Payload.LastMode, SidebarCollapsed: doc.Payload.SidebarCollapsed, LastActive: doc.LastUpdatedAt})
		},
	}

	cmd.AddCommand(set, show)
	return cmd
}
