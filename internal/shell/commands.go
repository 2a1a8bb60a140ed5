package shell

import (
	"context"
	"fmt"
	"strings"

	"MiniCatalog/internal/audit"
	"MiniCatalog/internal/catalog"
)

func commandTable() map[string]command {
	return map[string]command{
		"help": {usage: "help", help: "show available commands", guest: true, user: true, run: runHelp},
		"exit": {usage: "exit", help: "leave the shell", guest: true, user: true, run: runExit},

		"register": {usage: "register <username> <password>", help: "create an account", guest: true, run: runRegister},
		"login":    {usage: "login <username> <password>", help: "log in", guest: true, run: runLogin},
		"logout":   {usage: "logout", help: "log out", user: true, run: runLogout},
		"whoami":   {usage: "whoami", help: "show the logged in user", guest: true, user: true, run: runWhoami},

		"add": {
			usage: `add name=<name> category=<category> brand=<brand> price=<price> [description="..."]`,
			help:  "add a product", user: true, run: runAdd,
		},
		"update": {
			usage: "update <id> [name=..] [category=..] [brand=..] [price=..] [description=..]",
			help:  "change fields of a product", user: true, run: runUpdate,
		},
		"delete":   {usage: "delete <id>", help: "remove a product", user: true, run: runDelete},
		"get":      {usage: "get <id>", help: "show one product", user: true, run: runGet},
		"list":     {usage: "list", help: "list all products", user: true, run: runList},
		"category": {usage: "category <category>", help: "find products by category", user: true, run: runCategory},
		"brand":    {usage: "brand <brand>", help: "find products by brand", user: true, run: runBrand},
		"price":    {usage: "price <min> <max>", help: "find products priced in [min, max]", user: true, run: runPrice},
		"audit":    {usage: "audit", help: "show the whole audit trail", user: true, run: runAudit},
		"myaudit":  {usage: "myaudit", help: "show your own audit trail", user: true, run: runMyAudit},
	}
}

func runHelp(_ context.Context, s *Shell, _ args) error {
	s.printHelp()
	return nil
}

func runExit(_ context.Context, s *Shell, _ args) error {
	s.quit = true
	s.printf("bye\n")
	return nil
}

func credentials(a args) (string, string, error) {
	username, ok := a.get("username", 0)
	if !ok {
		return "", "", usageError("username is required")
	}
	password, ok := a.get("password", 1)
	if !ok {
		return "", "", usageError("password is required")
	}
	return username, password, nil
}

func runRegister(ctx context.Context, s *Shell, a args) error {
	username, password, err := credentials(a)
	if err != nil {
		return err
	}
	if err := s.session.Register(ctx, username, password); err != nil {
		return err
	}
	s.printf("user %s registered, you can login now\n", username)
	return nil
}

func runLogin(ctx context.Context, s *Shell, a args) error {
	username, password, err := credentials(a)
	if err != nil {
		return err
	}
	ok, err := s.session.Login(ctx, username, password)
	if ok {
		s.printf("welcome, %s\n", username)
	} else if err == nil {
		s.printf("wrong username or password\n")
	}
	return err
}

func runLogout(ctx context.Context, s *Shell, _ args) error {
	user, _ := s.session.CurrentUser()
	if err := s.session.Logout(ctx); err != nil {
		return err
	}
	s.printf("goodbye, %s\n", user)
	return nil
}

func runWhoami(_ context.Context, s *Shell, _ args) error {
	if user, ok := s.session.CurrentUser(); ok {
		s.printf("%s\n", user)
		return nil
	}
	s.printf("guest\n")
	return nil
}

func runAdd(ctx context.Context, s *Shell, a args) error {
	user, _ := s.session.CurrentUser()

	var p catalog.Product
	p.Name = a.named["name"]
	p.Category = a.named["category"]
	p.Brand = a.named["brand"]
	p.Description = a.named["description"]

	price, ok, err := a.price("price", -1)
	if err != nil {
		return err
	}
	if !ok {
		return usageError("price is required")
	}
	p.Price = price

	added, err := s.catalog.AddProduct(ctx, user, p)
	if added.ID != 0 {
		s.printf("product %d added\n", added.ID)
	}
	return err
}

// runUpdate loads the current product and overwrites only the fields given
// on the command line.
func runUpdate(ctx context.Context, s *Shell, a args) error {
	user, _ := s.session.CurrentUser()

	id, err := a.id(0)
	if err != nil {
		return err
	}
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return err
	}

	changed := false
	for key, dst := range map[string]*string{
		"name":        &p.Name,
		"category":    &p.Category,
		"brand":       &p.Brand,
		"description": &p.Description,
	} {
		if v, ok := a.named[key]; ok {
			*dst = v
			changed = true
		}
	}
	price, ok, err := a.price("price", -1)
	if err != nil {
		return err
	}
	if ok {
		p.Price = price
		changed = true
	}
	if !changed {
		return usageError("nothing to update")
	}

	updated, err := s.catalog.UpdateProduct(ctx, user, p)
	if updated.ID != 0 {
		s.printf("product %d updated\n", updated.ID)
	}
	return err
}

func runDelete(ctx context.Context, s *Shell, a args) error {
	user, _ := s.session.CurrentUser()

	id, err := a.id(0)
	if err != nil {
		return err
	}
	if err := s.catalog.DeleteProduct(ctx, user, id); err != nil {
		return err
	}
	s.printf("product %d removed\n", id)
	return nil
}

func runGet(ctx context.Context, s *Shell, a args) error {
	id, err := a.id(0)
	if err != nil {
		return err
	}
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	return writeProducts(s.out, []catalog.Product{p})
}

func runList(ctx context.Context, s *Shell, _ args) error {
	products, err := s.catalog.ListAll(ctx)
	if err != nil {
		return err
	}
	return s.showProducts(products, "the catalog is empty")
}

func runCategory(ctx context.Context, s *Shell, a args) error {
	user, _ := s.session.CurrentUser()

	category := joinedOperand(a, "category")
	if category == "" {
		return usageError("category is required")
	}
	products, err := s.catalog.FindByCategory(ctx, user, category)
	if err != nil {
		return err
	}
	return s.showProducts(products, fmt.Sprintf("no products in category %q", category))
}

func runBrand(ctx context.Context, s *Shell, a args) error {
	user, _ := s.session.CurrentUser()

	brand := joinedOperand(a, "brand")
	if brand == "" {
		return usageError("brand is required")
	}
	products, err := s.catalog.FindByBrand(ctx, user, brand)
	if err != nil {
		return err
	}
	return s.showProducts(products, fmt.Sprintf("no products of brand %q", brand))
}

func runPrice(ctx context.Context, s *Shell, a args) error {
	user, _ := s.session.CurrentUser()

	lo, okLo, err := a.price("min", 0)
	if err != nil {
		return err
	}
	hi, okHi, err := a.price("max", 1)
	if err != nil {
		return err
	}
	if !okLo || !okHi {
		return usageError("min and max are required")
	}

	products, err := s.catalog.FindByPriceRange(ctx, user, lo, hi)
	if err != nil {
		return err
	}
	return s.showProducts(products, fmt.Sprintf("no products priced between %s and %s", lo, hi))
}

func runAudit(ctx context.Context, s *Shell, _ args) error {
	events, err := s.audit.AllEvents(ctx)
	if err != nil {
		return err
	}
	return s.showEvents(events, "the audit trail is empty")
}

func runMyAudit(ctx context.Context, s *Shell, _ args) error {
	user, _ := s.session.CurrentUser()

	events, err := s.audit.EventsForUser(ctx, user)
	if err != nil {
		return err
	}
	return s.showEvents(events, fmt.Sprintf("no events for %s", user))
}

// joinedOperand accepts both key=value and unquoted multi-word operands, so
// "category Home Office" works like category="Home Office".
func joinedOperand(a args, key string) string {
	if v, ok := a.named[key]; ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(strings.Join(a.positional, " "))
}

func (s *Shell) showProducts(products []catalog.Product, empty string) error {
	if len(products) == 0 {
		s.printf("%s\n", empty)
		return nil
	}
	return writeProducts(s.out, products)
}

func (s *Shell) showEvents(events []audit.Event, empty string) error {
	if len(events) == 0 {
		s.printf("%s\n", empty)
		return nil
	}
	return writeEvents(s.out, events)
}
