package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"hallbook/storage"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func actorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Manage the acting user",
	}

	cmd.AddCommand(actorSetCmd())
	cmd.AddCommand(actorStatusCmd())
	cmd.AddCommand(actorClearCmd())
	return cmd
}

func actorSetCmd() *cobra.Command {
	var userID string
	var name string
	var trainerOf []string
	var assistantOf []string
	var playerOf []string
	var adminOf []string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set who commands act as",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" && term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Print("Name: ")
				reader := bufio.NewReader(os.Stdin)
				value, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				name = strings.TrimSpace(value)
			}
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			actor := storage.Actor{UserID: userID, Name: name, AdminOf: adminOf}
			add := func(teams []string, role storage.Role) {
				for _, team := range teams {
					actor.Memberships = append(actor.Memberships, storage.Membership{TeamID: team, Role: role})
				}
			}
			add(trainerOf, storage.RoleTrainer)
			add(assistantOf, storage.RoleAssistantTrainer)
			add(playerOf, storage.RolePlayer)

			if err := storage.SaveActor(&actor); err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(actor)
			}
			fmt.Printf("Acting as %s.\n", describeActor(actor))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringSliceVar(&trainerOf, "trainer", nil, "Team IDs the user trains")
	cmd.Flags().StringSliceVar(&assistantOf, "assistant", nil, "Team IDs the user assists")
	cmd.Flags().StringSliceVar(&playerOf, "player", nil, "Team IDs the user plays in")
	cmd.Flags().StringSliceVar(&adminOf, "admin", nil, "Club IDs the user administers")
	return cmd
}

func actorStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := storage.LoadActor()
			if err != nil {
				return err
			}
			if outputJSON {
				return writeJSON(actor)
			}
			if actor == nil {
				fmt.Println("No acting user set.")
				return nil
			}
			fmt.Printf("Acting as %s.\n", describeActor(*actor))
			if len(actor.AdminOf) > 0 {
				fmt.Printf("Admin of: %s\n", strings.Join(actor.AdminOf, ", "))
			}
			if len(actor.Memberships) == 0 {
				return nil
			}
			writer := newTable("TEAM\tROLE")
			for _, m := range actor.Memberships {
				fmt.Fprintf(writer, "%s\t%s\n", m.TeamID, m.Role)
			}
			return writer.Flush()
		},
	}

	return cmd
}

func actorClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := storage.ClearActor(); err != nil {
				return err
			}
			fmt.Println("Cleared acting user.")
			return nil
		},
	}

	return cmd
}

func describeActor(actor storage.Actor) string {
	if actor.Name == "" {
		return actor.UserID
	}
	return fmt.Sprintf("%s (%s)", actor.Name, actor.UserID)
}
