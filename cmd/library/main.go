package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"library_tracking/pkg/config"
	"library_tracking/pkg/database"
	"library_tracking/pkg/jobs"
	"library_tracking/pkg/loans"
	"library_tracking/pkg/logger"
	"library_tracking/pkg/models"
	"library_tracking/pkg/queue"
)

var (
	db      *gorm.DB
	library *loans.Service
)

func main() {
	log.Println("Starting library service...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(
		logger.WithLevelName(cfg.Log.Level),
		logger.WithFormat(logger.Format(cfg.Log.Format)),
		logger.WithService("library"),
	)
	slog.SetDefault(l)

	db, err = database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db, jobs.Tables()...); err != nil {
		log.Fatalf("%v", err)
	}

	enqueuer := queue.NewEnqueuer(queue.NewDatabaseStorage(db), queue.WithDefaultMaxRetries(cfg.Queue.MaxRetries))
	library = loans.NewService(db,
		loans.NewStore(db, loans.WithPageSize(cfg.Overdue.PageSize)),
		loans.WithNotifier(jobs.NewDispatcher(enqueuer)),
		loans.WithLogger(l),
	)

	if cfg.SeedData {
		seedTestData()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Library service starting on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down library service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}

func setupRouter() *gin.Engine {
	server := gin.Default()

	api := server.Group("/api")
	api.GET("/authors/", getAuthors)
	api.POST("/authors/", createAuthor)
	api.GET("/authors/:id/", getAuthor)
	api.PUT("/authors/:id/", updateAuthor)
	api.PATCH("/authors/:id/", updateAuthor)
	api.DELETE("/authors/:id/", deleteAuthor)

	api.GET("/books/", getBooks)
	api.POST("/books/", createBook)
	api.GET("/books/:id/", getBook)
	api.PUT("/books/:id/", updateBook)
	api.PATCH("/books/:id/", updateBook)
	api.DELETE("/books/:id/", deleteBook)
	api.POST("/books/:id/loan/", loanBook)

	api.GET("/members/", getMembers)
	api.POST("/members/", createMember)
	api.GET("/members/top-active/", topActiveMembers)
	api.GET("/members/:id/", getMember)
	api.PUT("/members/:id/", updateMember)
	api.PATCH("/members/:id/", updateMember)
	api.DELETE("/members/:id/", deleteMember)

	api.GET("/loans/", getLoans)
	api.GET("/loans/:id/", getLoan)
	api.PUT("/loans/:id/", updateLoan)
	api.PATCH("/loans/:id/", updateLoan)
	api.DELETE("/loans/:id/", deleteLoan)
	api.POST("/loans/:id/extend_due_date/", extendDueDate)
	api.POST("/loans/:id/return/", returnLoan)

	server.GET("/manage/health", healthCheck)
	return server
}

func getAuthors(c *gin.Context) {
	page, size := pagination(c)

	var total int64
	if err := db.Model(&models.Author{}).Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}

	var authors []models.Author
	err := db.Order("first_name, id").Offset((page - 1) * size).Limit(size).Find(&authors).Error
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, len(authors))
	for i, a := range authors {
		items[i] = authorJSON(a)
	}
	c.JSON(http.StatusOK, gin.H{
		"page":          page,
		"pageSize":      size,
		"totalElements": total,
		"items":         items,
	})
}

type authorRequest struct {
	FirstName string `json:"first_name" binding:"required,max=100"`
	LastName  string `json:"last_name" binding:"required,max=100"`
	Biography string `json:"biography"`
}

func createAuthor(c *gin.Context) {
	var req authorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	author := models.Author{FirstName: req.FirstName, LastName: req.LastName, Biography: req.Biography}
	if err := db.Create(&author).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, authorJSON(author))
}

func getAuthor(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var author models.Author
	if err := db.First(&author, id).Error; err != nil {
		respondNotFound(c, err, "Author not found")
		return
	}
	c.JSON(http.StatusOK, authorJSON(author))
}

type authorPatch struct {
	FirstName *string `json:"first_name" binding:"omitempty,max=100"`
	LastName  *string `json:"last_name" binding:"omitempty,max=100"`
	Biography *string `json:"biography"`
}

func updateAuthor(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req authorPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if missingField(c, requiredField{"first_name", req.FirstName}, requiredField{"last_name", req.LastName}) {
		return
	}

	var author models.Author
	if err := db.First(&author, id).Error; err != nil {
		respondNotFound(c, err, "Author not found")
		return
	}

	values := map[string]any{}
	setIfPresent(values, "first_name", req.FirstName)
	setIfPresent(values, "last_name", req.LastName)
	setIfPresent(values, "biography", req.Biography)
	if len(values) > 0 {
		if err := db.Model(&author).Updates(values).Error; err != nil {
			respondError(c, err)
			return
		}
	}

	if err := db.First(&author, id).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, authorJSON(author))
}

func deleteAuthor(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var author models.Author
	if err := db.First(&author, id).Error; err != nil {
		respondNotFound(c, err, "Author not found")
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		books := tx.Model(&models.Book{}).Select("id").Where("author_id = ?", id)
		if err := tx.Where("book_id IN (?)", books).Delete(&models.Loan{}).Error; err != nil {
			return err
		}
		if err := tx.Where("author_id = ?", id).Delete(&models.Book{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Author{}, id).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func getBooks(c *gin.Context) {
	page, size := pagination(c)

	filter := func(tx *gorm.DB) *gorm.DB {
		if genre := c.Query("genre"); genre != "" {
			tx = tx.Where("genre = ?", genre)
		}
		return tx
	}

	var total int64
	if err := db.Model(&models.Book{}).Scopes(filter).Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}

	var books []models.Book
	err := db.Scopes(filter).Preload("Author").Order("title, id").Offset((page - 1) * size).Limit(size).Find(&books).Error
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, len(books))
	for i, b := range books {
		items[i] = bookJSON(b)
	}
	c.JSON(http.StatusOK, gin.H{
		"page":          page,
		"pageSize":      size,
		"totalElements": total,
		"items":         items,
	})
}

type bookRequest struct {
	Title           string       `json:"title" binding:"required,max=200"`
	AuthorID        uint         `json:"author_id" binding:"required"`
	ISBN            string       `json:"isbn" binding:"required,max=13"`
	Genre           models.Genre `json:"genre"`
	AvailableCopies *int         `json:"available_copies" binding:"omitempty,min=0"`
}

func createBook(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Genre == "" {
		req.Genre = models.GenreOther
	}
	if !req.Genre.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown genre: " + string(req.Genre)})
		return
	}
	copies := 1
	if req.AvailableCopies != nil {
		copies = *req.AvailableCopies
	}

	var author models.Author
	if err := db.First(&author, req.AuthorID).Error; err != nil {
		respondNotFound(c, err, "Author not found")
		return
	}

	book := models.Book{
		Title:           req.Title,
		AuthorID:        author.ID,
		ISBN:            req.ISBN,
		Genre:           req.Genre,
		AvailableCopies: copies,
	}
	if err := db.Omit(clause.Associations).Create(&book).Error; err != nil {
		respondError(c, err)
		return
	}
	book.Author = author
	c.JSON(http.StatusCreated, bookJSON(book))
}

func getBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var book models.Book
	if err := db.Preload("Author").First(&book, id).Error; err != nil {
		respondNotFound(c, err, "Book not found")
		return
	}
	c.JSON(http.StatusOK, bookJSON(book))
}

type bookPatch struct {
	Title           *string       `json:"title" binding:"omitempty,max=200"`
	AuthorID        *uint         `json:"author_id"`
	ISBN            *string       `json:"isbn" binding:"omitempty,max=13"`
	Genre           *models.Genre `json:"genre"`
	AvailableCopies *int          `json:"available_copies" binding:"omitempty,min=0"`
}

func updateBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req bookPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if missingField(c, requiredField{"title", req.Title}, requiredField{"isbn", req.ISBN}) {
		return
	}
	if req.AuthorID == nil && c.Request.Method == http.MethodPut {
		c.JSON(http.StatusBadRequest, gin.H{"error": "author_id is required"})
		return
	}
	if req.Genre != nil && !req.Genre.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown genre: " + string(*req.Genre)})
		return
	}
	if req.AvailableCopies != nil && *req.AvailableCopies < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "available_copies cannot be negative"})
		return
	}

	var book models.Book
	if err := db.First(&book, id).Error; err != nil {
		respondNotFound(c, err, "Book not found")
		return
	}

	values := map[string]any{}
	if req.AuthorID != nil {
		var author models.Author
		if err := db.First(&author, *req.AuthorID).Error; err != nil {
			respondNotFound(c, err, "Author not found")
			return
		}
		values["author_id"] = author.ID
	}
	setIfPresent(values, "title", req.Title)
	setIfPresent(values, "isbn", req.ISBN)
	setIfPresent(values, "genre", req.Genre)
	setIfPresent(values, "available_copies", req.AvailableCopies)
	if len(values) > 0 {
		if err := db.Model(&book).Updates(values).Error; err != nil {
			respondError(c, err)
			return
		}
	}

	if err := db.Preload("Author").First(&book, id).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookJSON(book))
}

func deleteBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var book models.Book
	if err := db.First(&book, id).Error; err != nil {
		respondNotFound(c, err, "Book not found")
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", id).Delete(&models.Loan{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Book{}, id).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type loanRequest struct {
	MemberID uint `json:"member_id" binding:"required"`
}

func loanBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req loanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loan, err := library.CreateLoan(c.Request.Context(), id, req.MemberID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loanJSON(*loan))
}

func getMembers(c *gin.Context) {
	page, size := pagination(c)

	var total int64
	if err := db.Model(&models.Member{}).Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}

	var members []models.Member
	err := db.Order("membership_date DESC, id").Offset((page - 1) * size).Limit(size).Find(&members).Error
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, len(members))
	for i, m := range members {
		items[i] = memberJSON(m)
	}
	c.JSON(http.StatusOK, gin.H{
		"page":          page,
		"pageSize":      size,
		"totalElements": total,
		"items":         items,
	})
}

type memberRequest struct {
	Username  string `json:"username" binding:"required,max=150"`
	FirstName string `json:"first_name" binding:"max=150"`
	LastName  string `json:"last_name" binding:"max=150"`
	Email     string `json:"email" binding:"omitempty,email"`
}

func createMember(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	member := models.Member{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	}
	if err := db.Create(&member).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, memberJSON(member))
}

func getMember(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var member models.Member
	if err := db.First(&member, id).Error; err != nil {
		respondNotFound(c, err, "Member not found")
		return
	}
	c.JSON(http.StatusOK, memberJSON(member))
}

type memberPatch struct {
	Username  *string `json:"username" binding:"omitempty,max=150"`
	FirstName *string `json:"first_name" binding:"omitempty,max=150"`
	LastName  *string `json:"last_name" binding:"omitempty,max=150"`
	Email     *string `json:"email" binding:"omitempty,email"`
}

func updateMember(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req memberPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if missingField(c, requiredField{"username", req.Username}) {
		return
	}

	var member models.Member
	if err := db.First(&member, id).Error; err != nil {
		respondNotFound(c, err, "Member not found")
		return
	}

	values := map[string]any{}
	setIfPresent(values, "username", req.Username)
	setIfPresent(values, "first_name", req.FirstName)
	setIfPresent(values, "last_name", req.LastName)
	setIfPresent(values, "email", req.Email)
	if len(values) > 0 {
		if err := db.Model(&member).Updates(values).Error; err != nil {
			respondError(c, err)
			return
		}
	}

	if err := db.First(&member, id).Error; err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, memberJSON(member))
}

func deleteMember(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := library.DeleteMember(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func topActiveMembers(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("n", "5"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be an integer"})
		return
	}

	members, err := library.TopActiveMembers(c.Request.Context(), n)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func getLoans(c *gin.Context) {
	page, size := pagination(c)

	filter := func(tx *gorm.DB) *gorm.DB {
		if memberID := c.Query("member_id"); memberID != "" {
			tx = tx.Where("member_id = ?", memberID)
		}
		if returned := c.Query("is_returned"); returned != "" {
			tx = tx.Where("is_returned = ?", returned == "true")
		}
		return tx
	}

	var total int64
	if err := db.Model(&models.Loan{}).Scopes(filter).Count(&total).Error; err != nil {
		respondError(c, err)
		return
	}

	var loanList []models.Loan
	err := db.Scopes(filter).Preload("Book").Preload("Member").Order("loan_date DESC, id").Offset((page - 1) * size).Limit(size).Find(&loanList).Error
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, len(loanList))
	for i, l := range loanList {
		items[i] = loanJSON(l)
	}
	c.JSON(http.StatusOK, gin.H{
		"page":          page,
		"pageSize":      size,
		"totalElements": total,
		"items":         items,
	})
}

func getLoan(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	loan, err := library.Store().GetLoan(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanJSON(*loan))
}

type loanPatch struct {
	DueDate *string `json:"due_date" binding:"omitempty,datetime=2006-01-02"`
}

func updateLoan(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req loanPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if missingField(c, requiredField{"due_date", req.DueDate}) {
		return
	}

	if req.DueDate == nil {
		loan, err := library.Store().GetLoan(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, loanJSON(*loan))
		return
	}

	due, err := time.Parse(time.DateOnly, *req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "due_date must be a date in YYYY-MM-DD format"})
		return
	}
	loan, err := library.SetDueDate(c.Request.Context(), id, due)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanJSON(*loan))
}

func deleteLoan(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := library.DeleteLoan(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type extendRequest struct {
	AdditionalDays *int `json:"additional_days" binding:"required"`
}

func extendDueDate(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) || errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "additional_days is required"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "A valid integer is required."})
		return
	}

	loan, err := library.ExtendDueDate(c.Request.Context(), id, *req.AdditionalDays)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanJSON(*loan))
}

func returnLoan(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	loan, err := library.ReturnLoan(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanJSON(*loan))
}

func healthCheck(ctx *gin.Context) {
	sqlDB, err := db.DB()
	if err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database connection failed",
			"error":   err.Error(),
		})
		return
	}
	if err := sqlDB.PingContext(ctx.Request.Context()); err != nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "UP"})
}

func respondError(c *gin.Context, err error) {
	switch {
	case loans.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, loans.ErrLoanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Loan not found"})
	case errors.Is(err, loans.ErrBookNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
	case errors.Is(err, loans.ErrMemberNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
	case database.IsUniqueViolation(err):
		c.JSON(http.StatusConflict, gin.H{"error": "Record already exists"})
	default:
		slog.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func respondNotFound(c *gin.Context, err error, msg string) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
		return
	}
	respondError(c, err)
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

type requiredField struct {
	name  string
	value *string
}

// missingField writes a 400 when a required field is absent from a PUT body
// or blank in any update.
func missingField(c *gin.Context, fields ...requiredField) bool {
	full := c.Request.Method == http.MethodPut
	for _, f := range fields {
		if (f.value == nil && full) || (f.value != nil && *f.value == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": f.name + " is required"})
			return true
		}
	}
	return false
}

func setIfPresent[T any](values map[string]any, column string, v *T) {
	if v != nil {
		values[column] = *v
	}
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil || size < 1 || size > 100 {
		size = 10
	}
	return page, size
}

func authorJSON(a models.Author) gin.H {
	return gin.H{
		"id":         a.ID,
		"first_name": a.FirstName,
		"last_name":  a.LastName,
		"biography":  a.Biography,
	}
}

func bookJSON(b models.Book) gin.H {
	return gin.H{
		"id":               b.ID,
		"title":            b.Title,
		"author":           authorJSON(b.Author),
		"isbn":             b.ISBN,
		"genre":            b.Genre,
		"available_copies": b.AvailableCopies,
	}
}

func memberJSON(m models.Member) gin.H {
	return gin.H{
		"id":              m.ID,
		"username":        m.Username,
		"first_name":      m.FirstName,
		"last_name":       m.LastName,
		"email":           m.Email,
		"membership_date": m.MembershipDate.Format(time.DateOnly),
	}
}

func loanJSON(l models.Loan) gin.H {
	out := gin.H{
		"id":          l.ID,
		"book_id":     l.BookID,
		"member_id":   l.MemberID,
		"loan_date":   l.LoanDate.Format(time.DateOnly),
		"due_date":    nil,
		"return_date": nil,
		"is_returned": l.IsReturned,
		"is_overdue":  l.IsOverdue(time.Now()),
	}
	if l.DueDate != nil {
		out["due_date"] = l.DueDate.Format(time.DateOnly)
	}
	if l.ReturnDate != nil {
		out["return_date"] = l.ReturnDate.Format(time.DateOnly)
	}
	if l.Book.ID != 0 {
		out["book"] = gin.H{"id": l.Book.ID, "title": l.Book.Title}
	}
	if l.Member.ID != 0 {
		out["member"] = gin.H{"id": l.Member.ID, "username": l.Member.Username}
	}
	return out
}

func seedTestData() {
	authors := []models.Author{
		{FirstName: "Frank", LastName: "Herbert"},
		{FirstName: "Stanislaw", LastName: "Lem"},
		{FirstName: "Brian", LastName: "Kernighan"},
	}
	for i := range authors {
		if err := db.Where(models.Author{FirstName: authors[i].FirstName, LastName: authors[i].LastName}).
			FirstOrCreate(&authors[i]).Error; err != nil {
			log.Printf("Failed to seed author %s: %v", authors[i].LastName, err)
			return
		}
	}

	books := []models.Book{
		{Title: "Dune", AuthorID: authors[0].ID, ISBN: "9780441013593", Genre: models.GenreScienceFiction, AvailableCopies: 3},
		{Title: "Solaris", AuthorID: authors[1].ID, ISBN: "9780156027601", Genre: models.GenreScienceFiction, AvailableCopies: 2},
		{Title: "The C Programming Language", AuthorID: authors[2].ID, ISBN: "9780131103627", Genre: models.GenreProgramming, AvailableCopies: 1},
	}
	for _, b := range books {
		var existing models.Book
		if err := db.Where("isbn = ?", b.ISBN).First(&existing).Error; err != nil {
			if err := db.Omit(clause.Associations).Create(&b).Error; err != nil {
				log.Printf("Failed to create book %s: %v", b.Title, err)
			}
		}
	}

	member := models.Member{Username: "test_member", FirstName: "Test", LastName: "Member", Email: "member@example.com"}
	if err := db.Where("username = ?", member.Username).FirstOrCreate(&member).Error; err != nil {
		log.Printf("Failed to seed member: %v", err)
	}
	log.Println("Library test data seeded")
}
